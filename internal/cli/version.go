package cli

import (
	"runtime"

	"github.com/spf13/cobra"
)

// versionOutput is the JSON shape of 'tokengov version'.
type versionOutput struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// AddVersionCommand adds the version command.
func AddVersionCommand(root *cobra.Command, s *session) {
	root.AddCommand(&cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := s.info
			if info.Version == "" {
				info.Version = "dev"
			}
			v := versionOutput{
				Version:   info.Version,
				Commit:    info.Commit,
				Date:      info.Date,
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			}

			out := newPrinter(cmd, s)
			return out.result(v, func() {
				out.line("tokengov %s", formatVersion(s.info))
				out.line("%s %s", v.GoVersion, v.Platform)
			})
		},
	})
}
