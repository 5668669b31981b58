package main

import (
	"github.com/spf13/cobra"
)

func newVersionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "查看和管理处理版本",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "列出所有处理版本和别名",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			versions, err := a.versions()
			if err != nil {
				return err
			}
			names, err := versions.ListVersions(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), names)
		},
	}

	describe := &cobra.Command{
		Use:   "describe <procver>",
		Short: "显示处理版本的别名和基础版本",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			versions, err := a.versions()
			if err != nil {
				return err
			}
			info, err := versions.DescribeProcessingVersion(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}

	describeBase := &cobra.Command{
		Use:   "describe-base <baseprocver>",
		Short: "显示包含该基础版本的处理版本",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			versions, err := a.versions()
			if err != nil {
				return err
			}
			info, err := versions.DescribeBaseProcessingVersion(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}

	create := &cobra.Command{
		Use:   "create <description>",
		Short: "获取或创建处理版本, 同时创建同名基础版本",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			versions, err := a.versions()
			if err != nil {
				return err
			}
			id, err := versions.GetOrCreateProcessingVersion(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"id": id, "description": args[0]})
		},
	}

	createBase := &cobra.Command{
		Use:   "create-base <description>",
		Short: "获取或创建基础处理版本",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			versions, err := a.versions()
			if err != nil {
				return err
			}
			id, err := versions.GetOrCreateBaseVersion(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"id": id, "description": args[0]})
		},
	}

	alias := &cobra.Command{
		Use:   "alias <alias> <procver>",
		Short: "给处理版本添加别名",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			versions, err := a.versions()
			if err != nil {
				return err
			}
			return versions.CreateAlias(cmd.Context(), args[0], args[1])
		},
	}

	var priority int
	addBase := &cobra.Command{
		Use:   "add-base <procver> <baseprocver>",
		Short: "把基础版本按给定优先级加入处理版本",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			versions, err := a.versions()
			if err != nil {
				return err
			}
			return versions.AddBaseVersion(cmd.Context(), args[0], args[1], priority)
		},
	}
	addBase.Flags().IntVar(&priority, "priority", 0, "优先级, 数值越大越优先")
	_ = addBase.MarkFlagRequired("priority")

	cmd.AddCommand(list, describe, describeBase, create, createBase, alias, addBase)
	return cmd
}

func newCountCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "count <object|source|forced> <procver>",
		Short: "统计处理版本下的对象或测光行数",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ltcvs, err := a.ltcvs()
			if err != nil {
				return err
			}
			n, err := ltcvs.Count(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]int64{"count": n})
		},
	}
}
