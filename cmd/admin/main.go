// Command admin 提供运维操作：迁移表结构、创建初始账号、离线渲染简历。
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"gorm.io/gorm"

	"texResume/internal/auth"
	"texResume/internal/config"
	"texResume/internal/database"
	"texResume/internal/latex"
	"texResume/internal/resume"
)

// DBFlags 描述数据库连接，默认从与服务相同的环境变量读取。
type DBFlags struct {
	Driver     string `name:"db-driver" env:"DATABASE_DRIVER" default:"postgres" enum:"postgres,sqlite" help:"数据库驱动"`
	Host       string `name:"db-host" env:"DATABASE_HOST" default:"localhost" help:"数据库 Host"`
	Port       int    `name:"db-port" env:"DATABASE_PORT" default:"5432" help:"数据库 Port"`
	Name       string `name:"db-name" env:"POSTGRES_DB" help:"数据库名"`
	User       string `name:"db-user" env:"POSTGRES_USER" help:"数据库用户"`
	Password   string `name:"db-password" env:"POSTGRES_PASSWORD" help:"数据库密码"`
	SSLMode    string `name:"db-sslmode" env:"DATABASE_SSLMODE" default:"disable" help:"数据库 SSLMODE"`
	SQLitePath string `name:"sqlite-path" env:"SQLITE_PATH" default:"texresume.db" help:"SQLite 文件路径（db-driver=sqlite 时使用）"`
}

func (f DBFlags) config() (config.DatabaseConfig, error) {
	cfg := config.DatabaseConfig{
		Driver:     f.Driver,
		Host:       f.Host,
		Port:       f.Port,
		Name:       f.Name,
		User:       f.User,
		Password:   f.Password,
		SSLMode:    f.SSLMode,
		SQLitePath: f.SQLitePath,
	}
	if cfg.IsSQLite() {
		return cfg, nil
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return cfg, errors.New("database name is required (POSTGRES_DB)")
	}
	if strings.TrimSpace(cfg.User) == "" {
		return cfg, errors.New("database user is required (POSTGRES_USER)")
	}
	if strings.TrimSpace(cfg.Password) == "" {
		return cfg, errors.New("database password is required (POSTGRES_PASSWORD)")
	}
	return cfg, nil
}

func (f DBFlags) open() (*gorm.DB, error) {
	cfg, err := f.config()
	if err != nil {
		return nil, fmt.Errorf("load database config: %w", err)
	}
	db, err := database.InitDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return db, nil
}

// CLI 定义 admin 的全部子命令。
var CLI struct {
	DB DBFlags `embed:""`

	Migrate    MigrateCmd    `cmd:"" help:"创建或更新表结构"`
	CreateUser CreateUserCmd `cmd:"" name:"create-user" help:"创建账号（首次登录需强制改密）"`
	Render     RenderCmd     `cmd:"" help:"将某用户的简历渲染为 .tex"`
}

// MigrateCmd 仅执行迁移。
type MigrateCmd struct{}

func (c *MigrateCmd) Run(flags *DBFlags) error {
	if _, err := flags.open(); err != nil {
		return err
	}
	fmt.Println("database migrated")
	return nil
}

// CreateUserCmd 创建账号并打印一次性初始密码。
type CreateUserCmd struct {
	Username string `name:"username" required:"" help:"用户名"`
}

func (c *CreateUserCmd) Run(flags *DBFlags) error {
	u := strings.TrimSpace(c.Username)
	if u == "" {
		return errors.New("username must not be blank")
	}

	db, err := flags.open()
	if err != nil {
		return err
	}

	var existing database.User
	switch err := db.Where("username = ?", u).First(&existing).Error; {
	case err == nil:
		return fmt.Errorf("user %q already exists", u)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return fmt.Errorf("query user: %w", err)
	}

	password, err := generateRandomPassword(24)
	if err != nil {
		return fmt.Errorf("generate password: %w", err)
	}
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	user := database.User{
		Username:           u,
		PasswordHash:       hashed,
		MustChangePassword: true,
	}
	if err := db.Create(&user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Printf("已创建账号（首次登录需强制改密）：\n")
	fmt.Printf("用户名: %s\n", u)
	fmt.Printf("初始密码: %s\n", password)
	fmt.Printf("提示：请立即登录并修改密码（该密码仅显示一次）。\n")
	return nil
}

// RenderCmd 离线渲染简历，不经过队列与对象存储。
type RenderCmd struct {
	UserID    uint   `name:"user-id" required:"" help:"用户 ID"`
	ResumeID  uint   `name:"resume-id" required:"" help:"简历 ID"`
	Out       string `name:"out" short:"o" default:"-" help:"输出文件，- 表示标准输出"`
	Preamble  string `name:"preamble" env:"LATEX_PREAMBLE_PATH" type:"path" help:"自定义导言文件"`
	Postamble string `name:"postamble" env:"LATEX_POSTAMBLE_PATH" type:"path" help:"自定义结尾文件"`
}

func (c *RenderCmd) Run(flags *DBFlags) error {
	tmpl, err := latex.LoadTemplate(c.Preamble, c.Postamble)
	if err != nil {
		return err
	}

	db, err := flags.open()
	if err != nil {
		return err
	}

	blocks, err := resume.NewService(db, nil).ResolveResumeBlocks(context.Background(), c.UserID, c.ResumeID)
	if err != nil {
		return fmt.Errorf("resolve resume %d: %w", c.ResumeID, err)
	}

	doc, stats := latex.NewRenderer(tmpl).RenderWithStats(blocks)
	if c.Out == "-" {
		_, err = os.Stdout.WriteString(doc)
		return err
	}
	if err := os.WriteFile(c.Out, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", c.Out, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d blocks, %d skipped)\n", c.Out, stats.Rendered, stats.Skipped)
	return nil
}

func generateRandomPassword(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		bytesLen = 24
	}
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("admin"),
		kong.Description("texResume 运维工具"),
		kong.UsageOnError(),
	)
	err := ctx.Run(&CLI.DB)
	ctx.FatalIfErrorf(err)
}
