package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/gekko3d/soilvol/volrt/rt/codec"
	"github.com/gekko3d/soilvol/volrt/rt/loader"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

func inspectCommand() *cli.Command {
	var decode bool
	return &cli.Command{
		Name:      "inspect",
		Usage:     "print the header and sample statistics of volume containers",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "decode", Usage: "decompress and compute sample statistics", Destination: &decode},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() == 0 {
				return errors.New("inspect: at least one FILE is required")
			}
			var reports []volumeReport
			for _, path := range cmd.Args().Slice() {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				rep, err := inspectVolume(filepath.Base(path), data, decode)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				reports = append(reports, rep)
			}
			return renderReports(os.Stdout, reports, decode)
		},
	}
}

type sampleStats struct {
	Min, Max byte
	Mean     float64
	NonZero  float64
}

type volumeReport struct {
	Name       string
	Meta       codec.Metadata
	Compressed int64
	Stats      *sampleStats
}

func inspectVolume(name string, data []byte, decode bool) (volumeReport, error) {
	meta, err := codec.ReadMetadata(data)
	if err != nil {
		return volumeReport{}, err
	}
	rep := volumeReport{Name: name, Meta: meta, Compressed: int64(len(data))}
	if !decode {
		return rep, nil
	}
	vol, err := codec.Decode(data)
	if err != nil {
		return volumeReport{}, err
	}
	stats := computeStats(vol.Samples)
	rep.Stats = &stats
	return rep, nil
}

func computeStats(samples []byte) sampleStats {
	if len(samples) == 0 {
		return sampleStats{}
	}
	s := sampleStats{Min: 255}
	var sum, nonZero int
	for _, v := range samples {
		s.Min = min(s.Min, v)
		s.Max = max(s.Max, v)
		sum += int(v)
		if v != 0 {
			nonZero++
		}
	}
	s.Mean = float64(sum) / float64(len(samples))
	s.NonZero = float64(nonZero) / float64(len(samples))
	return s
}

func renderReports(w io.Writer, reports []volumeReport, withStats bool) error {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	header := []string{"File", "Size", "Samples", "Compressed", "Ratio", "Extra"}
	if withStats {
		header = append(header, "Min", "Max", "Mean", "Non-zero")
	}
	table.SetHeader(header)

	var total int64
	for _, r := range reports {
		ratio := "-"
		if r.Compressed > 0 {
			ratio = fmt.Sprintf("%.2fx", float64(r.Meta.SampleCount())/float64(r.Compressed))
		}
		row := []string{
			r.Name,
			fmt.Sprintf("%dx%dx%d", r.Meta.Width, r.Meta.Height, r.Meta.Depth),
			strconv.Itoa(r.Meta.SampleCount()),
			loader.FormatSize(r.Compressed),
			ratio,
			extraKeys(r.Meta.Extra),
		}
		if withStats && r.Stats != nil {
			row = append(row,
				strconv.Itoa(int(r.Stats.Min)),
				strconv.Itoa(int(r.Stats.Max)),
				fmt.Sprintf("%.2f", r.Stats.Mean),
				fmt.Sprintf("%.1f%%", r.Stats.NonZero*100),
			)
		} else if withStats {
			row = append(row, "-", "-", "-", "-")
		}
		table.Append(row)
		total += r.Compressed
	}
	if len(reports) > 1 {
		footer := make([]string, len(header))
		footer[0] = "Total"
		footer[3] = loader.FormatSize(total)
		table.SetFooter(footer)
	}
	table.Render()
	return nil
}

func extraKeys(extra map[string]any) string {
	if len(extra) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return strings.Join(keys, ",")
}
