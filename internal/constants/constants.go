// Package constants defines wire-format constants and security parameters for
// the KEMTLS-extended TLS 1.2/1.3 client handshake engine.
package constants

// ProtocolVersion identifies a TLS protocol version as it appears on the
// wire (legacy_version / supported_versions entries).
type ProtocolVersion uint16

const (
	VersionTLS10 ProtocolVersion = 0x0301
	VersionTLS11 ProtocolVersion = 0x0302
	VersionTLS12 ProtocolVersion = 0x0303
	VersionTLS13 ProtocolVersion = 0x0304
)

func (v ProtocolVersion) String() string {
	switch v {
	case VersionTLS10:
		return "TLS1.0"
	case VersionTLS11:
		return "TLS1.1"
	case VersionTLS12:
		return "TLS1.2"
	case VersionTLS13:
		return "TLS1.3"
	default:
		return "Unknown"
	}
}

// ContentType is the record-layer content type of a handshake record, as
// observed by the state dispatcher (4.A). Record framing itself is an
// external collaborator; the core only switches on this tag.
type ContentType uint8

const (
	ContentTypeChangeCipherSpec ContentType = 20
	ContentTypeAlert            ContentType = 21
	ContentTypeHandshake        ContentType = 22
	ContentTypeApplicationData  ContentType = 23
)

// HandshakeType identifies the inner handshake message type.
type HandshakeType uint8

const (
	HandshakeTypeHelloRequest       HandshakeType = 0
	HandshakeTypeClientHello        HandshakeType = 1
	HandshakeTypeServerHello        HandshakeType = 2
	HandshakeTypeHelloRetryRequest  HandshakeType = 2 // disambiguated by ServerHello.random sentinel
	HandshakeTypeNewSessionTicket   HandshakeType = 4
	HandshakeTypeEndOfEarlyData     HandshakeType = 5
	HandshakeTypeEncryptedExtensions HandshakeType = 8
	HandshakeTypeCertificate        HandshakeType = 11
	HandshakeTypeServerKeyExchange  HandshakeType = 12
	HandshakeTypeCertificateRequest HandshakeType = 13
	HandshakeTypeServerHelloDone    HandshakeType = 14
	HandshakeTypeCertificateVerify  HandshakeType = 15
	HandshakeTypeClientKeyExchange  HandshakeType = 16
	HandshakeTypeFinished           HandshakeType = 20
	HandshakeTypeKeyUpdate          HandshakeType = 24
	HandshakeTypeMessageHash        HandshakeType = 254

	// HandshakeTypeChangeCipherSpecSentinel is not a real handshake-layer
	// message type; the dispatcher gates every inbound record through one
	// check keyed on HandshakeType, and ApplicationData bypasses it
	// entirely per the Terminal state's doc comment. The TLS 1.2 legacy
	// branch's ExpectCCS state needs the same gate for a record that has
	// no inner handshake type at all (ContentTypeChangeCipherSpec carries
	// a single content byte, not a handshake body) - this sentinel lets
	// ExpectedMessages name it
	// without inventing a second dispatch mechanism.
	HandshakeTypeChangeCipherSpecSentinel HandshakeType = 253
)

// ExtensionType identifies a ClientHello/ServerHello/EncryptedExtensions/
// Certificate-entry extension.
type ExtensionType uint16

const (
	ExtServerName               ExtensionType = 0
	ExtStatusRequest             ExtensionType = 5
	ExtSupportedGroups            ExtensionType = 10
	ExtECPointFormats             ExtensionType = 11
	ExtSignatureAlgorithms        ExtensionType = 13
	ExtALPN                       ExtensionType = 16
	ExtSignedCertTimestamp        ExtensionType = 18
	ExtCertificateCompression     ExtensionType = 27
	ExtSessionTicket              ExtensionType = 35
	ExtPreSharedKey               ExtensionType = 41
	ExtEarlyData                  ExtensionType = 42
	ExtSupportedVersions          ExtensionType = 43
	ExtCookie                     ExtensionType = 44
	ExtPSKKeyExchangeModes        ExtensionType = 45
	ExtCertificateAuthorities     ExtensionType = 47
	ExtKeyShare                   ExtensionType = 51
	ExtQUICTransportParameters    ExtensionType = 57
	ExtExtendedMasterSecret       ExtensionType = 0x0017
)

// NamedGroup identifies a key-exchange group: classical DH/ECDH curves and,
// for KEMTLS, a post-quantum KEM.
type NamedGroup uint16

const (
	GroupSECP256R1 NamedGroup = 0x0017
	GroupX25519    NamedGroup = 0x001D
	GroupKyber768  NamedGroup = 0x6399 // matches draft codepoint conventions for ML-KEM-768
	GroupKyber1024 NamedGroup = 0x639A
)

func (g NamedGroup) IsPostQuantum() bool {
	return g == GroupKyber768 || g == GroupKyber1024
}

func (g NamedGroup) String() string {
	switch g {
	case GroupSECP256R1:
		return "secp256r1"
	case GroupX25519:
		return "x25519"
	case GroupKyber768:
		return "kyber768"
	case GroupKyber1024:
		return "kyber1024"
	default:
		return "unknown"
	}
}

// SignatureScheme identifies a signature algorithm usable in
// CertificateVerify / signature_algorithms, including the required PQ
// enumeration from the glossary and the KEMTLS_* KEM-certificate family.
type SignatureScheme uint16

const (
	SchemeECDSASECP256R1SHA256 SignatureScheme = 0x0403
	SchemeED25519              SignatureScheme = 0x0807
	SchemeRSAPSSRSAESHA256     SignatureScheme = 0x0804

	// Post-quantum signature schemes.
	SchemeDilithium2 SignatureScheme = 0xFE01
	SchemeDilithium3 SignatureScheme = 0xFE02
	SchemeDilithium5 SignatureScheme = 0xFE03
	SchemeFalcon512  SignatureScheme = 0xFE04
	SchemeFalcon1024 SignatureScheme = 0xFE05

	SchemeRainbowIClassic         SignatureScheme = 0xFE10
	SchemeRainbowICircumzenithal  SignatureScheme = 0xFE11
	SchemeRainbowICompressed      SignatureScheme = 0xFE12
	SchemeRainbowIIIClassic       SignatureScheme = 0xFE13
	SchemeRainbowIIICircumzenithal SignatureScheme = 0xFE14
	SchemeRainbowIIICompressed    SignatureScheme = 0xFE15
	SchemeRainbowVClassic         SignatureScheme = 0xFE16
	SchemeRainbowVCircumzenithal  SignatureScheme = 0xFE17
	SchemeRainbowVCompressed      SignatureScheme = 0xFE18

	SchemeSPHINCSHaraka128FSimple  SignatureScheme = 0xFE20
	SchemeSPHINCSHaraka128FRobust  SignatureScheme = 0xFE21
	SchemeSPHINCSHaraka128SSimple  SignatureScheme = 0xFE22
	SchemeSPHINCSHaraka128SRobust  SignatureScheme = 0xFE23
	SchemeSPHINCSHaraka192FSimple  SignatureScheme = 0xFE24
	SchemeSPHINCSHaraka192FRobust  SignatureScheme = 0xFE25
	SchemeSPHINCSHaraka192SSimple  SignatureScheme = 0xFE26
	SchemeSPHINCSHaraka192SRobust  SignatureScheme = 0xFE27
	SchemeSPHINCSHaraka256FSimple  SignatureScheme = 0xFE28
	SchemeSPHINCSHaraka256FRobust  SignatureScheme = 0xFE29
	SchemeSPHINCSHaraka256SSimple  SignatureScheme = 0xFE2A
	SchemeSPHINCSHaraka256SRobust  SignatureScheme = 0xFE2B

	SchemeSPHINCSSHA256128FSimple SignatureScheme = 0xFE30
	SchemeSPHINCSSHA256128FRobust SignatureScheme = 0xFE31
	SchemeSPHINCSSHA256128SSimple SignatureScheme = 0xFE32
	SchemeSPHINCSSHA256128SRobust SignatureScheme = 0xFE33
	SchemeSPHINCSSHA256192FSimple SignatureScheme = 0xFE34
	SchemeSPHINCSSHA256192FRobust SignatureScheme = 0xFE35
	SchemeSPHINCSSHA256192SSimple SignatureScheme = 0xFE36
	SchemeSPHINCSSHA256192SRobust SignatureScheme = 0xFE37
	SchemeSPHINCSSHA256256FSimple SignatureScheme = 0xFE38
	SchemeSPHINCSSHA256256FRobust SignatureScheme = 0xFE39
	SchemeSPHINCSSHA256256SSimple SignatureScheme = 0xFE3A
	SchemeSPHINCSSHA256256SRobust SignatureScheme = 0xFE3B

	SchemeSPHINCSSHAKE256128FSimple SignatureScheme = 0xFE40
	SchemeSPHINCSSHAKE256128FRobust SignatureScheme = 0xFE41
	SchemeSPHINCSSHAKE256128SSimple SignatureScheme = 0xFE42
	SchemeSPHINCSSHAKE256128SRobust SignatureScheme = 0xFE43
	SchemeSPHINCSSHAKE256192FSimple SignatureScheme = 0xFE44
	SchemeSPHINCSSHAKE256192FRobust SignatureScheme = 0xFE45
	SchemeSPHINCSSHAKE256192SSimple SignatureScheme = 0xFE46
	SchemeSPHINCSSHAKE256192SRobust SignatureScheme = 0xFE47
	SchemeSPHINCSSHAKE256256FSimple SignatureScheme = 0xFE48
	SchemeSPHINCSSHAKE256256FRobust SignatureScheme = 0xFE49
	SchemeSPHINCSSHAKE256256SSimple SignatureScheme = 0xFE4A
	SchemeSPHINCSSHAKE256256SRobust SignatureScheme = 0xFE4B

	SchemeXMSS SignatureScheme = 0xFE50

	// KEMTLS_* family: these codepoints identify a KEM public key carried in
	// an end-entity certificate (detected via pkg/oid), not a signature
	// algorithm that signs anything.
	SchemeKEMTLSKyber512  SignatureScheme = 0xFE60
	SchemeKEMTLSKyber768  SignatureScheme = 0xFE61
	SchemeKEMTLSKyber1024 SignatureScheme = 0xFE62

	SchemeKEMTLSMcEliece348864   SignatureScheme = 0xFE70
	SchemeKEMTLSMcEliece348864F  SignatureScheme = 0xFE71
	SchemeKEMTLSMcEliece460896   SignatureScheme = 0xFE72
	SchemeKEMTLSMcEliece460896F  SignatureScheme = 0xFE73
	SchemeKEMTLSMcEliece6688128  SignatureScheme = 0xFE74
	SchemeKEMTLSMcEliece6688128F SignatureScheme = 0xFE75
	SchemeKEMTLSMcEliece6960119  SignatureScheme = 0xFE76
	SchemeKEMTLSMcEliece6960119F SignatureScheme = 0xFE77
	SchemeKEMTLSMcEliece8192128  SignatureScheme = 0xFE78
	SchemeKEMTLSMcEliece8192128F SignatureScheme = 0xFE79

	SchemeKEMTLSLightSaber SignatureScheme = 0xFE80
	SchemeKEMTLSSaber      SignatureScheme = 0xFE81
	SchemeKEMTLSFireSaber  SignatureScheme = 0xFE82

	SchemeKEMTLSNTRUHPS2048509 SignatureScheme = 0xFE90
	SchemeKEMTLSNTRUHPS2048677 SignatureScheme = 0xFE91
	SchemeKEMTLSNTRUHPS4096821 SignatureScheme = 0xFE92
	SchemeKEMTLSNTRUHRSS701    SignatureScheme = 0xFE93
	SchemeKEMTLSNTRULPR653     SignatureScheme = 0xFE94
	SchemeKEMTLSNTRULPR761     SignatureScheme = 0xFE95
	SchemeKEMTLSNTRULPR857     SignatureScheme = 0xFE96
	SchemeKEMTLSSNTRUP653      SignatureScheme = 0xFE97
	SchemeKEMTLSSNTRUP761      SignatureScheme = 0xFE98
	SchemeKEMTLSSNTRUP857      SignatureScheme = 0xFE99

	SchemeKEMTLSFrodoKEM640AES    SignatureScheme = 0xFEA0
	SchemeKEMTLSFrodoKEM640SHAKE  SignatureScheme = 0xFEA1
	SchemeKEMTLSFrodoKEM976AES    SignatureScheme = 0xFEA2
	SchemeKEMTLSFrodoKEM976SHAKE  SignatureScheme = 0xFEA3
	SchemeKEMTLSFrodoKEM1344AES   SignatureScheme = 0xFEA4
	SchemeKEMTLSFrodoKEM1344SHAKE SignatureScheme = 0xFEA5

	SchemeKEMTLSSIKEp434           SignatureScheme = 0xFEB0
	SchemeKEMTLSSIKEp434Compressed SignatureScheme = 0xFEB1
	SchemeKEMTLSSIKEp503           SignatureScheme = 0xFEB2
	SchemeKEMTLSSIKEp503Compressed SignatureScheme = 0xFEB3
	SchemeKEMTLSSIKEp610           SignatureScheme = 0xFEB4
	SchemeKEMTLSSIKEp610Compressed SignatureScheme = 0xFEB5
	SchemeKEMTLSSIKEp751           SignatureScheme = 0xFEB6
	SchemeKEMTLSSIKEp751Compressed SignatureScheme = 0xFEB7

	SchemeKEMTLSBIKEL1FO SignatureScheme = 0xFEC0
	SchemeKEMTLSBIKEL3FO SignatureScheme = 0xFEC1
)

// CipherSuite identifies a TLS 1.3 AEAD + hash pairing. TLS 1.2 suites are
// represented the same way for the legacy branch, carrying a nominal hash
// only (no AEAD label is standardized for CBC suites and none are offered
// by this client).
type CipherSuite uint16

const (
	SuiteAES128GCMSHA256       CipherSuite = 0x1301
	SuiteAES256GCMSHA384       CipherSuite = 0x1302
	SuiteChaCha20Poly1305SHA256 CipherSuite = 0x1303

	// TLS 1.2 legacy branch. ECDHE_RSA only; this client never offers a
	// static-RSA or DHE suite.
	SuiteECDHERSAWithAES128GCMSHA256 CipherSuite = 0xC02F
	SuiteECDHERSAWithAES256GCMSHA384 CipherSuite = 0xC030
)

func (cs CipherSuite) IsTLS13() bool {
	switch cs {
	case SuiteAES128GCMSHA256, SuiteAES256GCMSHA384, SuiteChaCha20Poly1305SHA256:
		return true
	default:
		return false
	}
}

func (cs CipherSuite) HashOutputSize() int {
	switch cs {
	case SuiteAES256GCMSHA384, SuiteECDHERSAWithAES256GCMSHA384:
		return 48
	default:
		return 32
	}
}

func (cs CipherSuite) String() string {
	switch cs {
	case SuiteAES128GCMSHA256:
		return "TLS_AES_128_GCM_SHA256"
	case SuiteAES256GCMSHA384:
		return "TLS_AES_256_GCM_SHA384"
	case SuiteChaCha20Poly1305SHA256:
		return "TLS_CHACHA20_POLY1305_SHA256"
	case SuiteECDHERSAWithAES128GCMSHA256:
		return "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256"
	case SuiteECDHERSAWithAES256GCMSHA384:
		return "TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384"
	default:
		return "Unknown"
	}
}

// AlertLevel/AlertDescription mirror RFC 8446's alert protocol.
type AlertLevel uint8

const (
	AlertLevelWarning AlertLevel = 1
	AlertLevelFatal   AlertLevel = 2
)

type AlertDescription uint8

const (
	AlertCloseNotify            AlertDescription = 0
	AlertUnexpectedMessage      AlertDescription = 10
	AlertBadRecordMAC           AlertDescription = 20
	AlertHandshakeFailure       AlertDescription = 40
	AlertBadCertificate         AlertDescription = 42
	AlertUnsupportedCertificate AlertDescription = 43
	AlertIllegalParameter       AlertDescription = 47
	AlertDecodeError            AlertDescription = 50
	AlertDecryptError           AlertDescription = 51
	AlertProtocolVersion        AlertDescription = 70
	AlertMissingExtension       AlertDescription = 109
)

// Downgrade sentinels, RFC 8446: the last 8 bytes of ServerHello.random a
// 1.3-capable server MUST NOT send when negotiating a lower version; the
// client rejects them as a fatal PeerMisbehavedError.
var (
	DowngradeToTLS12Sentinel = [8]byte{0x44, 0x4F, 0x57, 0x4E, 0x47, 0x52, 0x44, 0x01}
	DowngradeToTLS11Sentinel = [8]byte{0x44, 0x4F, 0x57, 0x4E, 0x47, 0x52, 0x44, 0x00}
)

// Sizing constants reused by key-share/group and AEAD wiring.
const (
	RandomSize       = 32
	MaxSessionIDSize = 32
	HKDFMaxHashSize  = 48 // SHA-384

	X25519PublicKeySize = 32

	AESKeySize      = 32
	AESNonceSize    = 12
	AESTagSize      = 16
	ChaCha20KeySize = 32

	// MaxMessageSize bounds a single handshake message, guarding against
	// pathological length fields in CorruptMessagePayload decoding.
	MaxMessageSize = 1 << 20
)

// PSKKeyExchangeMode identifies the psk_key_exchange_modes extension values.
type PSKKeyExchangeMode uint8

const (
	PSKModePSKOnly   PSKKeyExchangeMode = 0
	PSKModePSKWithDHE PSKKeyExchangeMode = 1
)
