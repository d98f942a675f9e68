package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"cloudconnect-server/internal/config"
	"cloudconnect-server/internal/database"
	"cloudconnect-server/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "cloudconnect",
	Short: "CloudConnect - 远程桌面连接管理服务",
	Long: `CloudConnect 服务端

管理远程桌面连接和会话，提供 REST API 和实时通道。

不带子命令运行时等同于 serve。`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs", "配置文件目录")
}

// loadConfig 加载配置并初始化日志
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	return cfg, nil
}

// openDatabase 打开数据库并执行迁移
func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg.Database, cfg.Server.Mode)
	if err != nil {
		return nil, err
	}

	logging.Info().Str("driver", cfg.Database.Driver).Msg("database connected")

	if err := database.AutoMigrate(db); err != nil {
		return nil, err
	}
	logging.Info().Msg("database migrations completed")
	return db, nil
}

func closeDatabase(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
