package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"packscan/barcode"
	"packscan/camera"
	"packscan/config"
	"packscan/history"
	"packscan/overlay"
	"packscan/processor"
	"packscan/rtsp"
)

var (
	camIP, camLogin, camPassword string

	rtspIP, rtspPort, rtspLogin, rtspPassword, rtspChannel, rtspTemplate, rtspBackend string

	snapshotOut  string
	snapshotCode string

	labelDir     string
	labelPackers bool
	labelWidth   int
	labelHeight  int

	findRecent int
)

var testCameraCmd = &cobra.Command{
	Use:   "test-camera",
	Short: "Probe the IP camera snapshot endpoints",
	Long: `Tries every known snapshot URL with Basic, Digest and no authentication
and reports the result of each attempt. Values default to the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ip := orDefault(camIP, cfg.CameraIP)
		if !config.ValidateIP(ip) {
			return fmt.Errorf("%w: %q", config.ErrInvalidIP, ip)
		}
		client := camera.NewClient(ip, orDefault(camLogin, cfg.CameraLogin), orDefault(camPassword, cfg.CameraPassword), logger)

		ctx, cancel := signalContext()
		defer cancel()
		report, err := client.Test(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderReport(report.OK, report.String()))
		return nil
	},
}

var testRTSPCmd = &cobra.Command{
	Use:   "test-rtsp",
	Short: "Open the recorder's main stream and read one frame",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := *cfg
		c.RecorderIP = orDefault(rtspIP, cfg.RecorderIP)
		c.RecorderPort = orDefault(rtspPort, cfg.RecorderPort)
		c.RecorderLogin = orDefault(rtspLogin, cfg.RecorderLogin)
		c.RecorderPassword = orDefault(rtspPassword, cfg.RecorderPassword)
		c.RecorderChannel = orDefault(rtspChannel, cfg.RecorderChannel)
		c.RecorderTemplate = orDefault(rtspTemplate, cfg.RecorderTemplate)
		c.RTSPBackend = orDefault(rtspBackend, cfg.RTSPBackend)

		if !config.ValidateIP(c.RecorderIP) {
			return fmt.Errorf("%w: %q", config.ErrInvalidIP, c.RecorderIP)
		}
		rec, err := newRecorder(&c, logger)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()
		res := rec.Test(ctx)
		fmt.Fprintln(cmd.OutOrStdout(), renderReport(res.OK, res.String()))
		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Take one snapshot from the configured source",
	RunE: func(cmd *cobra.Command, args []string) error {
		src := sourceFor(cfg, logger)
		if src == nil {
			return fmt.Errorf("no recorder or camera configured")
		}

		ctx, cancel := signalContext()
		defer cancel()
		data, err := src.Snapshot(ctx)
		if err != nil {
			return err
		}

		if snapshotCode != "" {
			stamped, err := stampAnnotator{overlay.NewRenderer()}.Annotate(data, snapshotCode,
				time.Now().Format(processor.TimestampLayout), src.Name())
			if err != nil {
				logger.Warn("stamp failed, saving raw snapshot", zap.Error(err))
			} else {
				data = stamped
			}
		}

		out := snapshotOut
		if out == "" {
			out = fmt.Sprintf("snapshot_%s.jpg", time.Now().Format(processor.FileTimeLayout))
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Saved")+" "+out+mutedStyle.Render(" from "+src.Name()))
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete stale temp snapshots and expired session files",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newCleaner()
		temp := c.CleanupTemp()
		old := c.CleanupOld()
		fmt.Fprintf(cmd.OutOrStdout(), "%s temp files: %d, expired files and folders: %d\n",
			okStyle.Render("Cleanup done."), temp, old)
		return nil
	},
}

var labelCmd = &cobra.Command{
	Use:   "label [code...]",
	Short: "Print Code 128 labels as PNG files",
	Long: `Writes one PNG per code. With --packers a badge is written for every packer
in the config, named <id>_<name>.png.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		type label struct{ code, file string }
		var labels []label
		for _, code := range args {
			labels = append(labels, label{code, code + ".png"})
		}
		if labelPackers {
			for _, p := range cfg.Packers {
				labels = append(labels, label{p.ID, p.ID + "_" + p.Name + ".png"})
			}
		}
		if len(labels) == 0 {
			return fmt.Errorf("no codes given; pass codes or --packers")
		}

		if err := os.MkdirAll(labelDir, 0o755); err != nil {
			return err
		}
		for _, l := range labels {
			path := filepath.Join(labelDir, filepath.Base(l.file))
			if err := barcode.SavePNG(path, l.code, labelWidth, labelHeight); err != nil {
				return fmt.Errorf("label %s: %w", l.code, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Label")+" "+path)
		}
		return nil
	},
}

var findCmd = &cobra.Command{
	Use:   "find [code]",
	Short: "Look up past scans of a product code",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := context.Background()
		var scans []history.Scan
		if len(args) == 1 {
			scans, err = store.FindByCode(ctx, args[0])
		} else {
			scans, err = store.Recent(ctx, findRecent)
		}
		if err != nil {
			return err
		}
		if len(scans) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), warnStyle.Render("No scans found"))
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tCODE\tPACKER\tSOURCE\tSTATION\tPHOTO")
		for _, s := range scans {
			fmt.Fprintf(tw, "%s\t%s\t%s (#%s)\t%s\t%s\t%s\n",
				s.ScannedAt.Local().Format(processor.TimestampLayout), s.Code,
				s.PackerName, s.PackerID, s.Source, s.Station, s.Photo)
		}
		return tw.Flush()
	},
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the supported recorder RTSP templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ep := rtsp.Endpoint{IP: "192.168.1.64", Port: config.DefaultRecorderPort, Login: "admin", Password: "password", Channel: "1"}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tVENDOR\tMAIN STREAM")
		for _, t := range rtsp.Templates() {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Key, t.Name, rtsp.MaskURL(t.MainURL(ep)))
		}
		return tw.Flush()
	},
}

func init() {
	f := testCameraCmd.Flags()
	f.StringVar(&camIP, "ip", "", "Camera IP address")
	f.StringVar(&camLogin, "login", "", "Camera login")
	f.StringVar(&camPassword, "password", "", "Camera password")

	f = testRTSPCmd.Flags()
	f.StringVar(&rtspIP, "ip", "", "Recorder IP address")
	f.StringVar(&rtspPort, "port", "", "RTSP port")
	f.StringVar(&rtspLogin, "login", "", "Recorder login")
	f.StringVar(&rtspPassword, "password", "", "Recorder password")
	f.StringVar(&rtspChannel, "channel", "", "Recorder channel")
	f.StringVar(&rtspTemplate, "template", "", "RTSP template key (see 'packscan templates')")
	f.StringVar(&rtspBackend, "backend", "", "Capture backend: gocv or ffmpeg")

	f = snapshotCmd.Flags()
	f.StringVarP(&snapshotOut, "out", "o", "", "Output file (default snapshot_<time>.jpg)")
	f.StringVar(&snapshotCode, "stamp", "", "Stamp this code on the snapshot")

	f = labelCmd.Flags()
	f.StringVarP(&labelDir, "dir", "d", "labels", "Output directory")
	f.BoolVar(&labelPackers, "packers", false, "Write a badge for every configured packer")
	f.IntVar(&labelWidth, "width", barcode.DefaultWidth, "Minimum label width in pixels")
	f.IntVar(&labelHeight, "height", barcode.DefaultHeight, "Label height in pixels")

	findCmd.Flags().IntVarP(&findRecent, "recent", "n", 20, "Number of recent scans to list when no code is given")
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
