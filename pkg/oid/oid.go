// Package oid provides the SignatureScheme/KEM codepoint -> DER
// AlgorithmIdentifier enumeration the client's certificate handling needs.
//
// The client needs these to recognize a post-quantum public-key algorithm
// inside a certificate (EndEntityCert.public_key() returns an
// (algorithm_oid, bytes) pair) and to decide whether the end-entity
// certificate carries a KEM key (the KEMTLS fork in ExpectTLS13Certificate)
// or a signature key. Each table entry is a static
// pkix.AlgorithmIdentifier-shaped DER blob, generated once at init time
// under the Open Quantum Safe project's IANA-registered private enterprise
// arc (1.3.6.1.4.1.22554), following the same numbering convention OQS uses
// for its experimental liboqs-provider OIDs. These are placeholders for the
// exact draft values standards bodies eventually assign, not a claim of
// IANA registration; see DESIGN.md.
package oid

import (
	"encoding/asn1"
	"fmt"

	"github.com/kemtls-go/kemtls-client/internal/constants"
)

// oqsArc is the OQS project's private enterprise number.
var oqsArc = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 22554}

// algorithmIdentifier mirrors crypto/x509/pkix.AlgorithmIdentifier's DER
// shape without importing crypto/x509 for a two-field SEQUENCE.
type algorithmIdentifier struct {
	Algorithm asn1.ObjectIdentifier
}

func arc(family, parameter int) asn1.ObjectIdentifier {
	branch := make(asn1.ObjectIdentifier, 0, len(oqsArc)+2)
	branch = append(branch, oqsArc...)
	return append(branch, family, parameter)
}

func encode(oid asn1.ObjectIdentifier) []byte {
	der, err := asn1.Marshal(algorithmIdentifier{Algorithm: oid})
	if err != nil {
		// Marshaling a fixed, well-formed OID literal cannot fail; a
		// failure here means the static table itself is malformed.
		panic(fmt.Sprintf("oid: failed to encode %v: %v", oid, err))
	}
	return der
}

// Family arcs, one per algorithm family.
const (
	familyDilithium = 7
	familyFalcon    = 8
	familyRainbow   = 9
	familySPHINCS   = 10
	familyXMSS      = 11
	familyKyber     = 5
	familyMcEliece  = 12
	familySaber     = 13
	familyNTRU      = 14
	familyFrodoKEM  = 15
	familySIKE      = 16
	familyBIKE      = 17
)

var signatureSchemeOID = map[constants.SignatureScheme]asn1.ObjectIdentifier{
	constants.SchemeDilithium2: arc(familyDilithium, 2),
	constants.SchemeDilithium3: arc(familyDilithium, 3),
	constants.SchemeDilithium5: arc(familyDilithium, 5),

	constants.SchemeFalcon512:  arc(familyFalcon, 512),
	constants.SchemeFalcon1024: arc(familyFalcon, 1024),

	constants.SchemeRainbowIClassic:          arc(familyRainbow, 100),
	constants.SchemeRainbowICircumzenithal:   arc(familyRainbow, 101),
	constants.SchemeRainbowICompressed:       arc(familyRainbow, 102),
	constants.SchemeRainbowIIIClassic:        arc(familyRainbow, 300),
	constants.SchemeRainbowIIICircumzenithal: arc(familyRainbow, 301),
	constants.SchemeRainbowIIICompressed:     arc(familyRainbow, 302),
	constants.SchemeRainbowVClassic:          arc(familyRainbow, 500),
	constants.SchemeRainbowVCircumzenithal:   arc(familyRainbow, 501),
	constants.SchemeRainbowVCompressed:       arc(familyRainbow, 502),

	constants.SchemeSPHINCSHaraka128FSimple:  arc(familySPHINCS, 1281),
	constants.SchemeSPHINCSHaraka128FRobust:  arc(familySPHINCS, 1282),
	constants.SchemeSPHINCSHaraka128SSimple:  arc(familySPHINCS, 1283),
	constants.SchemeSPHINCSHaraka128SRobust:  arc(familySPHINCS, 1284),
	constants.SchemeSPHINCSHaraka192FSimple:  arc(familySPHINCS, 1921),
	constants.SchemeSPHINCSHaraka192FRobust:  arc(familySPHINCS, 1922),
	constants.SchemeSPHINCSHaraka192SSimple:  arc(familySPHINCS, 1923),
	constants.SchemeSPHINCSHaraka192SRobust:  arc(familySPHINCS, 1924),
	constants.SchemeSPHINCSHaraka256FSimple:  arc(familySPHINCS, 2561),
	constants.SchemeSPHINCSHaraka256FRobust:  arc(familySPHINCS, 2562),
	constants.SchemeSPHINCSHaraka256SSimple:  arc(familySPHINCS, 2563),
	constants.SchemeSPHINCSHaraka256SRobust:  arc(familySPHINCS, 2564),

	constants.SchemeSPHINCSSHA256128FSimple: arc(familySPHINCS, 3001),
	constants.SchemeSPHINCSSHA256128FRobust: arc(familySPHINCS, 3002),
	constants.SchemeSPHINCSSHA256128SSimple: arc(familySPHINCS, 3003),
	constants.SchemeSPHINCSSHA256128SRobust: arc(familySPHINCS, 3004),
	constants.SchemeSPHINCSSHA256192FSimple: arc(familySPHINCS, 3101),
	constants.SchemeSPHINCSSHA256192FRobust: arc(familySPHINCS, 3102),
	constants.SchemeSPHINCSSHA256192SSimple: arc(familySPHINCS, 3103),
	constants.SchemeSPHINCSSHA256192SRobust: arc(familySPHINCS, 3104),
	constants.SchemeSPHINCSSHA256256FSimple: arc(familySPHINCS, 3201),
	constants.SchemeSPHINCSSHA256256FRobust: arc(familySPHINCS, 3202),
	constants.SchemeSPHINCSSHA256256SSimple: arc(familySPHINCS, 3203),
	constants.SchemeSPHINCSSHA256256SRobust: arc(familySPHINCS, 3204),

	constants.SchemeSPHINCSSHAKE256128FSimple: arc(familySPHINCS, 4001),
	constants.SchemeSPHINCSSHAKE256128FRobust: arc(familySPHINCS, 4002),
	constants.SchemeSPHINCSSHAKE256128SSimple: arc(familySPHINCS, 4003),
	constants.SchemeSPHINCSSHAKE256128SRobust: arc(familySPHINCS, 4004),
	constants.SchemeSPHINCSSHAKE256192FSimple: arc(familySPHINCS, 4101),
	constants.SchemeSPHINCSSHAKE256192FRobust: arc(familySPHINCS, 4102),
	constants.SchemeSPHINCSSHAKE256192SSimple: arc(familySPHINCS, 4103),
	constants.SchemeSPHINCSSHAKE256192SRobust: arc(familySPHINCS, 4104),
	constants.SchemeSPHINCSSHAKE256256FSimple: arc(familySPHINCS, 4201),
	constants.SchemeSPHINCSSHAKE256256FRobust: arc(familySPHINCS, 4202),
	constants.SchemeSPHINCSSHAKE256256SSimple: arc(familySPHINCS, 4203),
	constants.SchemeSPHINCSSHAKE256256SRobust: arc(familySPHINCS, 4204),

	constants.SchemeXMSS: arc(familyXMSS, 1),

	constants.SchemeKEMTLSKyber512:  arc(familyKyber, 512),
	constants.SchemeKEMTLSKyber768:  arc(familyKyber, 768),
	constants.SchemeKEMTLSKyber1024: arc(familyKyber, 1024),

	constants.SchemeKEMTLSMcEliece348864:   arc(familyMcEliece, 348864),
	constants.SchemeKEMTLSMcEliece348864F:  arc(familyMcEliece, 348865),
	constants.SchemeKEMTLSMcEliece460896:   arc(familyMcEliece, 460896),
	constants.SchemeKEMTLSMcEliece460896F:  arc(familyMcEliece, 460897),
	constants.SchemeKEMTLSMcEliece6688128:  arc(familyMcEliece, 6688128),
	constants.SchemeKEMTLSMcEliece6688128F: arc(familyMcEliece, 6688129),
	constants.SchemeKEMTLSMcEliece6960119:  arc(familyMcEliece, 6960119),
	constants.SchemeKEMTLSMcEliece6960119F: arc(familyMcEliece, 6960120),
	constants.SchemeKEMTLSMcEliece8192128:  arc(familyMcEliece, 8192128),
	constants.SchemeKEMTLSMcEliece8192128F: arc(familyMcEliece, 8192129),

	constants.SchemeKEMTLSLightSaber: arc(familySaber, 1),
	constants.SchemeKEMTLSSaber:      arc(familySaber, 2),
	constants.SchemeKEMTLSFireSaber:  arc(familySaber, 3),

	constants.SchemeKEMTLSNTRUHPS2048509: arc(familyNTRU, 2048509),
	constants.SchemeKEMTLSNTRUHPS2048677: arc(familyNTRU, 2048677),
	constants.SchemeKEMTLSNTRUHPS4096821: arc(familyNTRU, 4096821),
	constants.SchemeKEMTLSNTRUHRSS701:    arc(familyNTRU, 701),
	constants.SchemeKEMTLSNTRULPR653:     arc(familyNTRU, 1653),
	constants.SchemeKEMTLSNTRULPR761:     arc(familyNTRU, 1761),
	constants.SchemeKEMTLSNTRULPR857:     arc(familyNTRU, 1857),
	constants.SchemeKEMTLSSNTRUP653:      arc(familyNTRU, 2653),
	constants.SchemeKEMTLSSNTRUP761:      arc(familyNTRU, 2761),
	constants.SchemeKEMTLSSNTRUP857:      arc(familyNTRU, 2857),

	constants.SchemeKEMTLSFrodoKEM640AES:    arc(familyFrodoKEM, 6401),
	constants.SchemeKEMTLSFrodoKEM640SHAKE:  arc(familyFrodoKEM, 6402),
	constants.SchemeKEMTLSFrodoKEM976AES:    arc(familyFrodoKEM, 9761),
	constants.SchemeKEMTLSFrodoKEM976SHAKE:  arc(familyFrodoKEM, 9762),
	constants.SchemeKEMTLSFrodoKEM1344AES:   arc(familyFrodoKEM, 13441),
	constants.SchemeKEMTLSFrodoKEM1344SHAKE: arc(familyFrodoKEM, 13442),

	constants.SchemeKEMTLSSIKEp434:           arc(familySIKE, 4341),
	constants.SchemeKEMTLSSIKEp434Compressed: arc(familySIKE, 4342),
	constants.SchemeKEMTLSSIKEp503:           arc(familySIKE, 5031),
	constants.SchemeKEMTLSSIKEp503Compressed: arc(familySIKE, 5032),
	constants.SchemeKEMTLSSIKEp610:           arc(familySIKE, 6101),
	constants.SchemeKEMTLSSIKEp610Compressed: arc(familySIKE, 6102),
	constants.SchemeKEMTLSSIKEp751:           arc(familySIKE, 7511),
	constants.SchemeKEMTLSSIKEp751Compressed: arc(familySIKE, 7512),

	constants.SchemeKEMTLSBIKEL1FO: arc(familyBIKE, 1),
	constants.SchemeKEMTLSBIKEL3FO: arc(familyBIKE, 3),
}

var algorithmIdentifierDER = func() map[constants.SignatureScheme][]byte {
	m := make(map[constants.SignatureScheme][]byte, len(signatureSchemeOID))
	for scheme, o := range signatureSchemeOID {
		m[scheme] = encode(o)
	}
	return m
}()

// AlgorithmIdentifierDER returns the static DER-encoded AlgorithmIdentifier
// for a SignatureScheme, including every KEMTLS_* KEM codepoint.
func AlgorithmIdentifierDER(scheme constants.SignatureScheme) ([]byte, bool) {
	der, ok := algorithmIdentifierDER[scheme]
	return der, ok
}

// ObjectIdentifier returns the raw OID for a scheme, mainly for tests that
// want to assert on arc structure rather than DER bytes.
func ObjectIdentifier(scheme constants.SignatureScheme) (asn1.ObjectIdentifier, bool) {
	o, ok := signatureSchemeOID[scheme]
	return o, ok
}

// IsKEMCodepoint reports whether scheme identifies a KEM public key (the
// KEMTLS_* family) rather than a signature algorithm. Used by
// ExpectTLS13Certificate to decide whether to fork into implicit
// authentication or the classical signed-CertificateVerify path.
func IsKEMCodepoint(scheme constants.SignatureScheme) bool {
	return scheme >= constants.SchemeKEMTLSKyber512 && scheme <= constants.SchemeKEMTLSBIKEL3FO
}
