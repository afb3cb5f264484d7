package main

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	var logger *zap.Logger

	root := &cobra.Command{
		Use:   "kafkaxd",
		Short: "Demo host for the kafkax decode pipeline",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v.SetEnvPrefix("kafkaxd")
			v.AutomaticEnv()
			if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
				v.SetConfigFile(cfgFile)
				if err := v.ReadInConfig(); err != nil {
					return err
				}
			}

			l, err := zap.NewProduction()
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
	}

	root.PersistentFlags().String("config", "", "path to a kafkaxd config file")
	root.PersistentFlags().String("bootstrap-servers", "localhost:9092", "Kafka bootstrap servers")
	root.PersistentFlags().String("group-id", "kafkaxd", "consumer group id")
	_ = v.BindPFlag("bootstrap.servers", root.PersistentFlags().Lookup("bootstrap-servers"))
	_ = v.BindPFlag("group.id", root.PersistentFlags().Lookup("group-id"))

	instanceID := uuid.New().String()

	root.AddCommand(newRunCmd(v, &logger, instanceID))
	return root
}
