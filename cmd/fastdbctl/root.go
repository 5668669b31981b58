package main

import (
	"encoding/json"
	"io"

	"github.com/3Eeeecho/go-fastdb/internal/config"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/logger"
	"github.com/3Eeeecho/go-fastdb/internal/repositories"
	"github.com/3Eeeecho/go-fastdb/internal/services/ltcv"
	"github.com/3Eeeecho/go-fastdb/internal/services/versioning"
	"github.com/3Eeeecho/go-fastdb/internal/setup"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// app 子命令共享的配置和按需建立的连接
type app struct {
	configPath string
	cfg        *config.Config
	db         *gorm.DB
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "fastdbctl",
		Short:         "FASTDB 管理工具",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfigFrom(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			logger.InitLogger(config.LogConfig{Level: cfg.Log.Level})
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			setup.ClosePostgres(a.db)
			logger.Sync()
		},
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "配置文件路径, 默认按 ./config.yaml, ./configs, /etc/go-fastdb 查找")

	cmd.AddCommand(
		newMigrateCmd(a),
		newVersionsCmd(a),
		newCountCmd(a),
		newIngestCmd(a),
		newExportCmd(a),
	)
	return cmd
}

// openDB 命令行工具不自动迁移, 由 migrate 子命令显式执行
func (a *app) openDB() (*gorm.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	pc := a.cfg.Postgres
	pc.AutoMigrate = false
	db, err := setup.InitPostgres(&pc, a.cfg.Query)
	if err != nil {
		return nil, err
	}
	a.db = db
	return db, nil
}

func (a *app) versions() (versioning.Service, error) {
	db, err := a.openDB()
	if err != nil {
		return nil, err
	}
	return versioning.NewService(repositories.NewVersionRepository(db), nil, 0), nil
}

func (a *app) ltcvs() (ltcv.Service, error) {
	versions, err := a.versions()
	if err != nil {
		return nil, err
	}
	return ltcv.NewService(versions, repositories.NewMeasurementRepository(a.db, a.cfg.Query), a.cfg.Query, nil), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
