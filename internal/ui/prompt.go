package ui

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
)

// TargetAnswers holds what PromptTarget collected.
type TargetAnswers struct {
	Address string
	Port    int
	Route   string
}

// PromptTarget asks for the device address when none was given on the
// command line. defaults prefill the form.
func PromptTarget(defaults TargetAnswers) (TargetAnswers, error) {
	address := defaults.Address
	port := strconv.Itoa(defaults.Port)
	route := defaults.Route

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Target IP").
				Description("Device IP address or hostname.").
				Key("address").
				Validate(validateAddress).
				Value(&address),
			huh.NewInput().
				Title("Port").
				Description("TCP port for EtherNet/IP (default 44818).").
				Key("port").
				Validate(validatePort).
				Value(&port),
			huh.NewInput().
				Title("Route (optional)").
				Description("Port,link pairs to reach a module, e.g. backplane,0.").
				Key("route").
				Value(&route),
		),
	)
	if err := form.Run(); err != nil {
		return TargetAnswers{}, err
	}

	p, _ := strconv.Atoi(strings.TrimSpace(port))
	return TargetAnswers{
		Address: strings.TrimSpace(address),
		Port:    p,
		Route:   strings.TrimSpace(route),
	}, nil
}

func validateAddress(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("address is required")
	}
	if strings.ContainsAny(s, " /") {
		return fmt.Errorf("invalid address %q", s)
	}
	if ip := net.ParseIP(s); ip == nil && strings.Count(s, ":") > 0 {
		return fmt.Errorf("give the port separately")
	}
	return nil
}

func validatePort(s string) error {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || p <= 0 || p > 0xFFFF {
		return fmt.Errorf("port must be 1-65535")
	}
	return nil
}
