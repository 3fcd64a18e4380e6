// Package cli 实现 searchkit 命令行的各个子命令。
package cli

import (
	"context"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/rushteam/searchkit/config"
	"github.com/rushteam/searchkit/pkg/logging"
	"github.com/rushteam/searchkit/service"
)

// Options 是所有子命令共享的全局参数。
type Options struct {
	ConfigPath string
	LogLevel   string
}

// Bind 把全局参数注册到根命令。
func (o *Options) Bind(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&o.ConfigPath, "config", "c", os.Getenv(config.EnvPrefix+"CONFIG"), "Path to searchkit YAML config")
	cmd.PersistentFlags().StringVar(&o.LogLevel, "log-level", "", "Override logging.level")
}

// Open 加载配置、初始化日志并创建服务，调用方负责 Close。
func (o *Options) Open(ctx context.Context, cmd *cobra.Command) (*service.Service, error) {
	s, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	if o.LogLevel != "" {
		s.Logging.Level = o.LogLevel
	}
	s.Logging.Output = cmd.ErrOrStderr()
	logging.Init(s.Logging)
	return service.New(ctx, s)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
