package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/stevedomin/termtable"
	"golang.org/x/term"

	"camctl/internal/camera"
	"camctl/internal/store"
)

// format は出力形式を決める。指定がなければ端末なら table、それ以外は json
func (a *App) format(w io.Writer) (string, error) {
	switch a.output {
	case "table", "json":
		return a.output, nil
	case "":
	default:
		return "", fmt.Errorf("無効な出力形式: %q", a.output)
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "table", nil
	}
	return "json", nil
}

// render は v を JSON で、または header と rows を表で出力する
func (a *App) render(w io.Writer, v any, header []string, rows [][]string) error {
	format, err := a.format(w)
	if err != nil {
		return err
	}
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	t := termtable.NewTable(nil, &termtable.TableOptions{
		Padding:      2,
		UseSeparator: false,
	})
	t.SetHeader(header)
	for _, row := range rows {
		t.AddRow(row)
	}
	_, err = fmt.Fprintln(w, t.Render())
	return err
}

func deviceRows(devices []camera.DeviceInfo) [][]string {
	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, []string{strconv.Itoa(d.Index), d.Name})
	}
	return rows
}

func settingRows(settings []camera.Setting) [][]string {
	rows := make([][]string, 0, len(settings))
	for _, s := range settings {
		rows = append(rows, []string{
			string(s.Category),
			s.Property,
			itoa32(s.Value),
			itoa32(s.Min),
			itoa32(s.Max),
			itoa32(s.Step),
			itoa32(s.Default),
			strconv.FormatBool(s.Auto),
		})
	}
	return rows
}

func resolutionRows(resolutions []camera.Resolution) [][]string {
	rows := make([][]string, 0, len(resolutions))
	for _, r := range resolutions {
		rows = append(rows, []string{itoa32(r.Width), itoa32(r.Height), r.Format})
	}
	return rows
}

func historyRows(changes []store.Change) [][]string {
	rows := make([][]string, 0, len(changes))
	for _, c := range changes {
		rows = append(rows, []string{
			c.Time.Format("2006-01-02 15:04:05"),
			c.Device,
			c.Property,
			itoa32(c.Value),
			strconv.FormatBool(c.Auto),
			strconv.FormatBool(c.Applied),
			c.Error,
		})
	}
	return rows
}

func presetRows(presets []store.Preset) [][]string {
	rows := make([][]string, 0, len(presets))
	for _, p := range presets {
		rows = append(rows, []string{
			p.Name,
			p.Device,
			strconv.Itoa(len(p.Updates)),
			p.UpdatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return rows
}

func itoa32(v int32) string {
	return strconv.FormatInt(int64(v), 10)
}
