package database

import (
	"fmt"

	"github.com/xpwu/go-config/configs"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Enabled      bool   `json:"enabled"`        // 是否启用 postgres
	Host         string `json:"host"`           // 数据库主机地址
	Port         string `json:"port"`           // 数据库端口
	User         string `json:"user"`           // 数据库用户名
	Password     string `json:"password"`       // 数据库密码
	DBName       string `json:"dbname"`         // 数据库名称
	SSLMode      string `json:"sslmode"`        // SSL模式
	MaxOpenConns int    `json:"max_open_conns"` // 最大连接数
	MaxIdleConns int    `json:"max_idle_conns"` // 最大空闲连接数
}

// GlobalDatabaseConfig 全局数据库配置实例
var GlobalDatabaseConfig = DatabaseConfig{
	Enabled:      false,
	Host:         "localhost",
	Port:         "5432",
	User:         "bouncebot",
	Password:     "",
	DBName:       "bouncebot",
	SSLMode:      "disable",
	MaxOpenConns: 25,
	MaxIdleConns: 5,
}

// DSN 连接串
func (c DatabaseConfig) DSN() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, sslmode)
}

func init() {
	configs.Unmarshal(&GlobalDatabaseConfig)
}
