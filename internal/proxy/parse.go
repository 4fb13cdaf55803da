package proxy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ParseEndpoints converts configured endpoint strings into endpoints.
// Accepted forms are "host:port" and "user:pass@host:port".
func ParseEndpoints(entries []string) ([]Endpoint, error) {
	endpoints := make([]Endpoint, 0, len(entries))
	for i, entry := range entries {
		ep, err := parseEndpoint(entry)
		if err != nil {
			return nil, eris.Wrapf(err, "proxy: endpoint %d", i)
		}
		ep.ID = fmt.Sprintf("ep-%d", i)
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

func parseEndpoint(entry string) (Endpoint, error) {
	var ep Endpoint

	addr := strings.TrimSpace(entry)
	if at := strings.LastIndex(addr, "@"); at >= 0 {
		creds := addr[:at]
		addr = addr[at+1:]
		user, pass, ok := strings.Cut(creds, ":")
		if !ok {
			return ep, eris.Errorf("credentials %q missing password", creds)
		}
		ep.Username = user
		ep.Password = pass
	}

	host, portStr, ok := strings.Cut(addr, ":")
	if !ok || host == "" {
		return ep, eris.Errorf("address %q is not host:port", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return ep, eris.Errorf("address %q has invalid port", addr)
	}

	ep.Host = host
	ep.Port = port
	return ep, nil
}
