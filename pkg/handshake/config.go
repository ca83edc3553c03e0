// config.go configures the handshake engine via the same functional-options
// pattern pkg/metrics uses for its own span configuration
// (tracing.go's WithSpanKind/WithAttributes), rather
// than a public struct literal callers fill in by hand.
package handshake

import (
	"github.com/kemtls-go/kemtls-client/internal/constants"
)

// Config holds everything the Initial state needs to build a ClientHello:
// supported versions, the default key-share group, optional extensions,
// and feature toggles.
type Config struct {
	SupportedVersions []constants.ProtocolVersion
	DefaultGroup      constants.NamedGroup
	ALPNProtocols     []string
	EnableSNI         bool
	EnableOCSP        bool
	EnableSCT         bool
	EnableEarlyData   bool
	EnableCertCompression bool
	QUICTransportParams   []byte
	ExtraExtensions      []ExtraExtension
	SignatureSchemes     []constants.SignatureScheme
	SupportedGroups      []constants.NamedGroup
}

// ExtraExtension is a caller-supplied additional ClientHello extension,
// always ordered before pre_shared_key.
type ExtraExtension struct {
	Type constants.ExtensionType
	Body []byte
}

// Option mutates a Config under construction.
type Option func(*Config)

// Default returns a Config offering both protocol versions, X25519 as the
// default 1.3 group, SNI, OCSP status_request and SCT enabled, and no
// early data - the conservative baseline a caller opts up from.
func Default() Config {
	return Config{
		SupportedVersions: []constants.ProtocolVersion{constants.VersionTLS13, constants.VersionTLS12},
		DefaultGroup:      constants.GroupX25519,
		EnableSNI:         true,
		EnableOCSP:        true,
		EnableSCT:         true,
		SignatureSchemes: []constants.SignatureScheme{
			constants.SchemeECDSASECP256R1SHA256,
			constants.SchemeED25519,
			constants.SchemeRSAPSSRSAESHA256,
			constants.SchemeDilithium3,
			constants.SchemeFalcon512,
		},
		SupportedGroups: []constants.NamedGroup{
			constants.GroupX25519,
			constants.GroupSECP256R1,
			constants.GroupKyber768,
			constants.GroupKyber1024,
		},
	}
}

// New builds a Config from Default() plus opts, in order.
func New(opts ...Option) Config {
	cfg := Default()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Validate reports whether cfg is internally consistent.
func (c *Config) Validate() error {
	if len(c.SupportedVersions) == 0 {
		return errConfigNoVersions
	}
	return nil
}

func WithVersions(versions ...constants.ProtocolVersion) Option {
	return func(c *Config) { c.SupportedVersions = versions }
}

func WithDefaultGroup(group constants.NamedGroup) Option {
	return func(c *Config) { c.DefaultGroup = group }
}

func WithALPN(protocols ...string) Option {
	return func(c *Config) { c.ALPNProtocols = protocols }
}

func WithSNI(enabled bool) Option {
	return func(c *Config) { c.EnableSNI = enabled }
}

func WithOCSP(enabled bool) Option {
	return func(c *Config) { c.EnableOCSP = enabled }
}

func WithSCT(enabled bool) Option {
	return func(c *Config) { c.EnableSCT = enabled }
}

func WithEarlyData(enabled bool) Option {
	return func(c *Config) { c.EnableEarlyData = enabled }
}

// WithCertCompression acknowledges the certificate_compression extension
// in ClientHello: this client only negotiates the extension and passes
// any compressed blob through to the external CertVerifier unchanged -
// actual decompression is outside this package's record-layer scope.
func WithCertCompression(enabled bool) Option {
	return func(c *Config) { c.EnableCertCompression = enabled }
}

func WithQUICTransportParams(params []byte) Option {
	return func(c *Config) { c.QUICTransportParams = params }
}

func WithExtraExtensions(exts ...ExtraExtension) Option {
	return func(c *Config) { c.ExtraExtensions = exts }
}

func WithSignatureSchemes(schemes ...constants.SignatureScheme) Option {
	return func(c *Config) { c.SignatureSchemes = schemes }
}

func WithSupportedGroups(groups ...constants.NamedGroup) Option {
	return func(c *Config) { c.SupportedGroups = groups }
}
