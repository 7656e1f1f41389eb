package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/jbweber/quarry"
)

// TableFormatter formats resources as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatVMList formats the machine listing as a table.
func (f *TableFormatter) FormatVMList(vms []quarry.VMInfo) (string, error) {
	if len(vms) == 0 {
		return "No machines found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tCLASS\tSTATE")
	}
	for _, vm := range vms {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", vm.Name, orDash(vm.Class), orDash(vm.State))
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("failed to format table: %w", err)
	}
	return buf.String(), nil
}

// FormatProperties formats a property listing as a table.
func (f *TableFormatter) FormatProperties(props []Property) (string, error) {
	if len(props) == 0 {
		return "No properties found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tTYPE\tSETTABLE\tDEFAULT\tVALUE")
	}
	for _, p := range props {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			p.Name, p.Type, yesNo(p.Settable), yesNo(p.Default), p.Value)
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("failed to format table: %w", err)
	}
	return buf.String(), nil
}

// FormatVolumeInfo formats one volume's properties as a key/value table.
func (f *TableFormatter) FormatVolumeInfo(info quarry.VolumeInfo) (string, error) {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "POOL\t%s\n", info.Pool)
	_, _ = fmt.Fprintf(w, "VID\t%s\n", info.Vid)
	_, _ = fmt.Fprintf(w, "SIZE\t%d\n", info.Size)
	_, _ = fmt.Fprintf(w, "USAGE\t%d\n", info.Usage)
	_, _ = fmt.Fprintf(w, "RW\t%s\n", yesNo(info.RW))
	_, _ = fmt.Fprintf(w, "SNAP ON START\t%s\n", yesNo(info.SnapOnStart))
	_, _ = fmt.Fprintf(w, "SAVE ON STOP\t%s\n", yesNo(info.SaveOnStop))
	_, _ = fmt.Fprintf(w, "SOURCE\t%s\n", orDash(info.Source))
	_, _ = fmt.Fprintf(w, "INTERNAL\t%s\n", yesNo(info.Internal))
	_, _ = fmt.Fprintf(w, "REVISIONS TO KEEP\t%d\n", info.RevisionsToKeep)

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("failed to format table: %w", err)
	}
	return buf.String(), nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
