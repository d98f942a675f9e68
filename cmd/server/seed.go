package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cloudconnect-server/internal/database"
	"cloudconnect-server/pkg/util"
)

// demoPassword 演示账号密码
const demoPassword = "password"

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "写入演示数据",
	Long: `创建演示账号 demo / password，以及三个连接和三条会话。

演示账号已存在时不做任何修改。`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	hash, err := util.HashPassword(demoPassword)
	if err != nil {
		return err
	}

	created, err := database.Seed(cmd.Context(), db, hash, time.Now())
	if err != nil {
		return err
	}

	if !created {
		fmt.Fprintf(cmd.OutOrStdout(), "演示账号 %s 已存在，跳过\n", database.DemoUsername)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ 已创建演示账号 %s / %s\n", database.DemoUsername, demoPassword)
	return nil
}
