// Package config loads venue session declarations from XML (spec §6)
// and an optional YAML runtime-tuning overlay, following
// internal/scheduler's YAML struct-tag style for the latter.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"
)

// Parameter is a free-form <Parameter name= value=/> child of a Session.
type Parameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Session is one <Session> element: one venue connection's credentials,
// instrument set, and wire parameters.
type Session struct {
	Name        string      `xml:"name,attr"`
	NumID       int         `xml:"num_id,attr"`
	Active      bool        `xml:"active,attr"`
	Host        string      `xml:"host,attr"`
	Port        int         `xml:"port,attr"`
	APIKey      string      `xml:"api_key,attr"`
	SecretKey   string      `xml:"secret_key,attr"`
	Passphrase  string      `xml:"passphrase,attr"`
	RecvWindow  int         `xml:"recv_window,attr"`
	Instruments string      `xml:"instruments,attr"`
	Channels    string      `xml:"channels,attr"`
	Depth       string      `xml:"depth,attr"`
	Protocol    string      `xml:"protocol,attr"`
	Schema      string      `xml:"schema,attr"`
	Parameters  []Parameter `xml:"Parameter"`
}

// InstrumentList splits the comma-separated instruments attribute.
func (s Session) InstrumentList() []string {
	if s.Instruments == "" {
		return nil
	}
	parts := strings.Split(s.Instruments, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Parameter looks up a free-form parameter by name.
func (s Session) Parameter(name string) (string, bool) {
	for _, p := range s.Parameters {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Venue and Kind are Schema's two colon-separated components, e.g.
// "Binance:MD" -> Venue "Binance", Kind "MD".
func (s Session) Venue() string {
	if idx := strings.IndexByte(s.Schema, ':'); idx >= 0 {
		return s.Schema[:idx]
	}
	return s.Schema
}

func (s Session) Kind() string {
	if idx := strings.IndexByte(s.Schema, ':'); idx >= 0 {
		return s.Schema[idx+1:]
	}
	return ""
}

// sessionsDocument is the XML root: <Sessions><Session .../>...</Sessions>.
type sessionsDocument struct {
	XMLName  xml.Name  `xml:"Sessions"`
	Sessions []Session `xml:"Session"`
}

// LoadSessions reads and parses a venue session XML file.
func LoadSessions(path string) ([]Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session config %s: %w", path, err)
	}

	var doc sessionsDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse session config %s: %w", path, err)
	}
	return doc.Sessions, nil
}

// ActiveSessions filters to sessions with active=="true".
func ActiveSessions(sessions []Session) []Session {
	var out []Session
	for _, s := range sessions {
		if s.Active {
			out = append(out, s)
		}
	}
	return out
}
