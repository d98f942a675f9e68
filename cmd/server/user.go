package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"cloudconnect-server/internal/model"
	"cloudconnect-server/internal/repository"
	"cloudconnect-server/pkg/util"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "用户管理",
}

var (
	newUsername string
	newEmail    string
)

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "创建用户",
	Long: `创建一个新用户。

密码从终端读取，输入时不回显。`,
	RunE: runUserCreate,
}

func init() {
	userCreateCmd.Flags().StringVarP(&newUsername, "username", "u", "", "用户名（3-50 个字符）")
	userCreateCmd.Flags().StringVar(&newEmail, "email", "", "邮箱（可选）")
	userCreateCmd.MarkFlagRequired("username")

	userCmd.AddCommand(userCreateCmd)
	rootCmd.AddCommand(userCmd)
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	username := strings.TrimSpace(newUsername)
	if len(username) < 3 || len(username) > 50 {
		return errors.New("用户名长度必须为 3-50 个字符")
	}

	password, err := readPassword(cmd)
	if err != nil {
		return err
	}
	if len(password) < 6 {
		return errors.New("密码至少需要 6 个字符")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	hash, err := util.HashPassword(password)
	if err != nil {
		return err
	}

	user := &model.User{Username: username, PasswordHash: hash}
	if newEmail != "" {
		user.Email = util.StringPtr(newEmail)
	}

	if err := repository.NewUserRepository(db).Create(cmd.Context(), user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("用户名 %s 已存在", username)
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ 已创建用户 %s (ID: %d)\n", user.Username, user.ID)
	return nil
}

// readPassword 读取两次密码并确认一致
func readPassword(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("需要在终端中运行以输入密码")
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, "请输入密码: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("读取密码失败: %w", err)
	}

	fmt.Fprint(out, "请再次输入密码: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("读取密码失败: %w", err)
	}

	if string(first) != string(second) {
		return "", errors.New("两次输入的密码不一致")
	}
	return strings.TrimSpace(string(first)), nil
}
