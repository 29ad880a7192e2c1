package main

import (
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	apiclient "github.com/YoubetDao/MCPForge-Backend-sub000/pkg/api/client"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printServers(w io.Writer, format string, servers []apiclient.MCPServer) error {
	if format == "json" {
		return printJSON(w, servers)
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Name", "Image", "Phase", "URL", "Age"})
	for _, s := range servers {
		phase := s.Status.Phase
		if phase == "" {
			phase = "Pending"
		}
		t.AppendRow(table.Row{s.Metadata.Name, s.Spec.Image, phase, s.Status.URL, age(s.Metadata.CreationTimestamp)})
	}
	t.Render()
	return nil
}

func printCreated(w io.Writer, format string, res apiclient.CreateResult) error {
	if format == "json" {
		return printJSON(w, map[string]any{"server": res.Server, "url": res.URL})
	}
	if res.URL != "" {
		res.Server.Status.URL = res.URL
	}
	return printServers(w, format, []apiclient.MCPServer{res.Server})
}

func printCards(w io.Writer, format string, cards []apiclient.Card) error {
	if format == "json" {
		return printJSON(w, cards)
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Name", "Author", "Image", "Price", "Tags", "GitHub"})
	for _, c := range cards {
		price := ""
		if c.Price != nil {
			price = strconv.FormatFloat(*c.Price, 'f', 2, 64)
		}
		t.AppendRow(table.Row{c.ID, c.Name, c.Author, c.DockerImage, price, strings.Join(c.Tags, ","), c.GitHubURL})
	}
	t.Render()
	return nil
}

func printHealth(w io.Writer, format string, health apiclient.Health) error {
	if format == "json" {
		return printJSON(w, health)
	}
	names := make([]string, 0, len(health.Components))
	for name := range health.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	t := newTable(w)
	t.SetTitle("api: " + health.Status)
	t.AppendHeader(table.Row{"Component", "Status", "Error"})
	for _, name := range names {
		c := health.Components[name]
		t.AppendRow(table.Row{name, c.Status, c.Error})
	}
	t.Render()
	return nil
}

func age(created time.Time) string {
	if created.IsZero() {
		return ""
	}
	d := time.Since(created).Round(time.Second)
	switch {
	case d < time.Minute:
		return d.String()
	case d < time.Hour:
		return (d / time.Minute * time.Minute).String()
	case d < 48*time.Hour:
		return (d / time.Hour * time.Hour).String()
	default:
		return strconv.Itoa(int(d/(24*time.Hour))) + "d"
	}
}
