package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// Defaults.
const (
	DefaultService = "_sessionkit._tcp"
	DefaultDomain  = "local."
	DefaultTTL     = 120 * time.Second

	// BrowseTimeout bounds Find when the context has no deadline.
	BrowseTimeout = 10 * time.Second

	// MaxInstanceNameLen is the DNS label limit for instance names.
	MaxInstanceNameLen = 63
)

// Reserved TXT keys.
const (
	TXTKeyID  = "id"
	TXTKeyTLS = "tls"
)

// Errors.
var (
	ErrNotFound            = errors.New("service not found")
	ErrInstanceNameInvalid = errors.New("invalid instance name")
	ErrInvalidPort         = errors.New("invalid port")
)

// ServiceInfo describes an instance to advertise.
type ServiceInfo struct {
	// Instance is the instance name, unique on the link.
	Instance string

	// Service is the service type. Defaults to DefaultService.
	Service string

	// Domain defaults to DefaultDomain.
	Domain string

	// Port the server listens on.
	Port int

	// TXT holds metadata published with the instance.
	TXT map[string]string
}

func (i ServiceInfo) withDefaults() ServiceInfo {
	if i.Service == "" {
		i.Service = DefaultService
	}
	if i.Domain == "" {
		i.Domain = DefaultDomain
	}
	return i
}

func (i ServiceInfo) validate() error {
	if err := ValidateInstanceName(i.Instance); err != nil {
		return err
	}
	if i.Port <= 0 || i.Port > 65535 {
		return ErrInvalidPort
	}
	return nil
}

// Service is a discovered instance. Addresses seen on several interfaces
// are merged into one Service.
type Service struct {
	Instance  string
	Host      string
	Port      int
	Addresses []string
	TXT       map[string]string
}

// ID returns the advertised server ID, if any.
func (s *Service) ID() string {
	return s.TXT[TXTKeyID]
}

// TLS reports whether the server advertises TLS.
func (s *Service) TLS() bool {
	v, ok := s.TXT[TXTKeyTLS]
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b || v == ""
}

// Address returns a dialable host:port, preferring the first resolved
// address over the host name.
func (s *Service) Address() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(s.Port))
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return errors.Join(ErrInstanceNameInvalid, errors.New("empty name"))
	}
	if len(name) > MaxInstanceNameLen {
		return errors.Join(ErrInstanceNameInvalid, errors.New("name too long"))
	}
	return nil
}
