// Copyright (c) 2018, Postgres Professional

// Frozen cluster metadata and the generated management artifact. The
// artifact is a self-contained executable text file: a /bin/sh shim that
// execs pgflockctl with itself as the cluster file, followed by the metadata
// as a JSON trailer. The management tool treats the metadata as read-only
// across all invocations.
package meta

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"pgflock/internal/cluster"
	"pgflock/internal/topology"
)

const ArtifactName = "pgflock_ctl"

const trailerMarker = "# --- frozen cluster metadata, do not edit ---"

type ClusterMeta struct {
	FormatVersion uint64              `json:"format_version"`
	Spec          cluster.ClusterSpec `json:"spec"`
	Nodes         []cluster.NodeSpec  `json:"nodes"`
	Plan          *topology.Plan      `json:"plan"`
}

// The shim execs before the trailer is ever reached by the shell; the
// metadata is rendered as data, never spliced into code.
var artifactTemplate = template.Must(template.New("artifact").Parse(
	`#!/bin/sh
# generated management tool; run with: status|start|stop|restart|destroy
exec {{.CtlBin}} --cluster-file "$0" "$@"
{{.Marker}}
{{.MetaJSON}}
`))

// LocateCtl finds the pgflockctl binary to bake into the shim: a sibling of
// the running provisioner if present, otherwise resolved from PATH at run
// time.
func LocateCtl() string {
	self, err := os.Executable()
	if err != nil {
		return "pgflockctl"
	}
	sibling := filepath.Join(filepath.Dir(self), "pgflockctl")
	if _, err := os.Stat(sibling); err != nil {
		return "pgflockctl"
	}
	return sibling
}

// WriteArtifact renders the executable artifact at path.
func WriteArtifact(path string, m *ClusterMeta, ctlBin string) error {
	metaj, err := json.MarshalIndent(m, "# ", "  ")
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}
	defer f.Close()

	return artifactTemplate.Execute(f, struct {
		CtlBin   string
		Marker   string
		MetaJSON string
	}{
		CtlBin:   ctlBin,
		Marker:   trailerMarker,
		MetaJSON: "# " + string(metaj),
	})
}

// ReadArtifact parses the frozen metadata back out of the trailer.
func ReadArtifact(path string) (*ClusterMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var jsonLines []string
	inTrailer := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == trailerMarker {
			inTrailer = true
			continue
		}
		if !inTrailer {
			continue
		}
		jsonLines = append(jsonLines, strings.TrimPrefix(line, "# "))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !inTrailer {
		return nil, fmt.Errorf("%s carries no metadata trailer; not a generated management artifact?", path)
	}

	var m ClusterMeta
	if err := json.Unmarshal([]byte(strings.Join(jsonLines, "\n")), &m); err != nil {
		return nil, fmt.Errorf("malformed metadata trailer in %s: %v", path, err)
	}
	if m.FormatVersion != cluster.CurrentFormatVersion {
		return nil, fmt.Errorf("artifact format version %d, this tool understands %d",
			m.FormatVersion, cluster.CurrentFormatVersion)
	}
	return &m, nil
}
