package main

import (
	"context"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-fastdb/internal/repositories"
	"github.com/3Eeeecho/go-fastdb/internal/services/export"
	"github.com/3Eeeecho/go-fastdb/internal/services/ingest"
	"github.com/3Eeeecho/go-fastdb/internal/services/ltcv"
	"github.com/3Eeeecho/go-fastdb/internal/setup"
	"github.com/spf13/cobra"
)

func newIngestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "从告警暂存库导入数据",
	}

	var (
		req    ingest.Request
		cutoff string
	)
	run := &cobra.Command{
		Use:   "run",
		Short: "同步执行一次导入, 从上次的水位读到 cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cutoff != "" {
				t, err := time.Parse(time.RFC3339, cutoff)
				if err != nil {
					return fmt.Errorf("cutoff must be RFC3339: %w", err)
				}
				req.Cutoff = t
			}
			versions, err := a.versions()
			if err != nil {
				return err
			}
			store, err := setup.InitStaging(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = store.Close(ctx)
			}()

			svc := ingest.NewService(versions, repositories.NewIngestRepository(a.db, a.cfg.Ingest.BatchSize), store, a.cfg.Ingest, nil)
			rep, err := svc.Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rep)
		},
	}
	run.Flags().StringVar(&req.Collection, "collection", "", "暂存库中的 collection")
	run.Flags().StringVar(&req.BaseProcver, "base-procver", "", "写入的基础处理版本")
	run.Flags().StringVar(&cutoff, "cutoff", "", "只导入 savetime 不晚于该时刻的告警 (RFC3339), 默认当前时间")
	_ = run.MarkFlagRequired("collection")
	_ = run.MarkFlagRequired("base-procver")

	cmd.AddCommand(run)
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "导出光变曲线快照到对象存储",
	}

	var (
		req                        ltcv.HotRequest
		sinceMJD, lastDays, mjdNow float64
	)
	hot := &cobra.Command{
		Use:   "hot",
		Short: "导出最近有探测的对象的光变曲线",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if flags.Changed("since-mjd") {
				req.DetectedSinceMJD = &sinceMJD
			}
			if flags.Changed("last-days") {
				req.DetectedInLastDays = &lastDays
			}
			if flags.Changed("mjd-now") {
				req.MJDNow = &mjdNow
			}
			ltcvs, err := a.ltcvs()
			if err != nil {
				return err
			}
			ss, err := setup.InitStorage(a.cfg)
			if err != nil {
				return err
			}
			svc := export.NewService(ltcvs, ss, a.cfg.Storage.ExportPrefix, a.cfg.Storage.ExportURLExpiry)
			res, err := svc.ExportHotLtcvs(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	f := hot.Flags()
	f.StringVar(&req.Procver, "procver", "", "处理版本")
	f.Float64Var(&sinceMJD, "since-mjd", 0, "只要该 MJD 之后有探测的对象, 与 --last-days 互斥")
	f.Float64Var(&lastDays, "last-days", 0, "只要最近若干天内有探测的对象, 默认 30")
	f.Float64Var(&mjdNow, "mjd-now", 0, "视为当前时刻的 MJD, 默认当前时间")
	f.BoolVar(&req.SourcePatch, "source-patch", false, "用探测补齐缺失的强制测光")
	f.BoolVar(&req.IncludeHostInfo, "hostinfo", false, "附带宿主星系信息")
	_ = hot.MarkFlagRequired("procver")

	cmd.AddCommand(hot)
	return cmd
}
