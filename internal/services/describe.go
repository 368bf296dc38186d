package services

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Console command kinds.
const (
	KindServiceCall = "service_call"
	KindAlias       = "alias"
)

// Payload modes for service_call commands.
const (
	PayloadRaw   = "raw"
	PayloadEmpty = "empty"
)

// Description is the JSON document a service returns from Describe.
type Description struct {
	ID      string          `json:"id" jsonschema:"required"`
	Version int             `json:"version"`
	Methods []MethodDoc     `json:"methods,omitempty"`
	Console *ConsoleSection `json:"console,omitempty"`
}

// MethodDoc documents one callable method.
type MethodDoc struct {
	Name    string `json:"name" jsonschema:"required"`
	Payload string `json:"payload,omitempty"`
	Returns string `json:"returns,omitempty"`
}

// ConsoleSection lists commands a service contributes to the console.
type ConsoleSection struct {
	Commands []CommandDoc `json:"commands"`
}

// CommandDoc declares one console command. Any kind other than alias is a
// service_call. ServiceID defaults to the describing service, Payload defaults to raw.
type CommandDoc struct {
	Name      string `json:"name" jsonschema:"required"`
	Help      string `json:"help,omitempty"`
	Kind      string `json:"kind,omitempty" jsonschema:"enum=service_call,enum=alias"`
	ServiceID string `json:"service_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Payload   string `json:"payload,omitempty" jsonschema:"enum=raw,enum=empty"`
	Expand    string `json:"expand,omitempty"`
}

// ParseDescription decodes a describe() document.
func ParseDescription(raw string) (Description, error) {
	var desc Description
	if err := json.Unmarshal([]byte(raw), &desc); err != nil {
		return Description{}, fmt.Errorf("services: parse description: %w", err)
	}
	return desc, nil
}

// String encodes the description as compact JSON.
func (d Description) String() string {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Sprintf(`{"id":%q}`, d.ID)
	}
	return string(data)
}

// Normalize fills defaults relative to the describing service. It reports
// false for entries that cannot become commands.
func (c CommandDoc) Normalize(serviceID string) (CommandDoc, bool) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" || strings.ContainsAny(c.Name, " \t\r\n") {
		return c, false
	}
	if c.Kind != KindAlias {
		c.Kind = KindServiceCall
	}
	switch c.Kind {
	case KindAlias:
		if strings.TrimSpace(c.Expand) == "" {
			return c, false
		}
		if c.Help == "" {
			c.Help = "alias -> " + c.Expand
		}
	default:
		if c.Method == "" {
			return c, false
		}
		if c.ServiceID == "" {
			c.ServiceID = serviceID
		}
		if c.Payload != PayloadEmpty {
			c.Payload = PayloadRaw
		}
		if c.Help == "" {
			c.Help = fmt.Sprintf("service call: %s %s", c.ServiceID, c.Method)
		}
	}
	return c, true
}
