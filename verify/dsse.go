package verify

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// dsseEnvelope is the subset of a DSSE (Dead Simple Signing Envelope) this
// package reads: a base64-encoded payload plus its declared type.
type dsseEnvelope struct {
	PayloadType string `json:"payloadType"`
	Payload     string `json:"payload"`
}

// inTotoStatement is the subset of an in-toto attestation statement this
// package reads: the subjects it attests to and the predicate type. The
// predicate body is not decoded here — the policy evaluator gets the whole
// payload as a generic map, not a narrowly typed struct, exactly as the
// original hands the whole payload to its policy engine.
type inTotoStatement struct {
	Subject       []inTotoSubject `json:"subject"`
	PredicateType string          `json:"predicateType"`
}

type inTotoSubject struct {
	Name   string            `json:"name"`
	Digest map[string]string `json:"digest"`
}

// VerifyAttestationOffline parses attestationPath's tar for an
// attestation.json DSSE envelope, decodes its payload, confirms one of the
// statement's subjects matches subjectDigest (hex, no "sha256:" prefix),
// confirms the predicate type names SLSA provenance, and, when cfg carries
// policy content, runs policy evaluation against the raw payload.
func VerifyAttestationOffline(attestationPath, subjectDigest string, cfg Config) error {
	files, err := extractNamedFiles(attestationPath, "attestation.json")
	if err != nil {
		return err
	}
	content, ok := files["attestation.json"]
	if !ok {
		return fail("incomplete attestation data in archive")
	}

	payload, predicateType, err := decodeAttestationPayload(content, strings.TrimPrefix(subjectDigest, "sha256:"))
	if err != nil {
		return err
	}

	if !strings.Contains(predicateType, "slsa.dev/provenance") {
		return fail("unsupported predicate type: " + predicateType)
	}

	if cfg.PolicyContent == "" {
		return nil
	}
	return EvaluatePolicy(payload, cfg)
}

// decodeAttestationPayload unwraps a DSSE envelope, decodes and parses its
// payload, and confirms a subject with the given sha256 hex digest is
// present, returning the decoded payload (for policy evaluation) and its
// declared predicate type.
func decodeAttestationPayload(envelopeJSON []byte, subjectHex string) (map[string]any, string, error) {
	var envelope dsseEnvelope
	if err := json.Unmarshal(envelopeJSON, &envelope); err != nil {
		return nil, "", fail("failed to parse DSSE envelope JSON: " + err.Error())
	}
	if envelope.Payload == "" {
		return nil, "", fail("no payload found in DSSE envelope")
	}

	payloadBytes, err := base64.StdEncoding.DecodeString(envelope.Payload)
	if err != nil {
		return nil, "", fail("failed to decode base64 payload: " + err.Error())
	}

	var statement inTotoStatement
	if err := json.Unmarshal(payloadBytes, &statement); err != nil {
		return nil, "", fail("failed to parse payload JSON: " + err.Error())
	}

	matched := false
	for _, subj := range statement.Subject {
		if subj.Digest["sha256"] == subjectHex {
			matched = true
			break
		}
	}
	if !matched {
		return nil, "", fail(fmt.Sprintf("no matching subject found in attestation for digest: %s", subjectHex))
	}
	if statement.PredicateType == "" {
		return nil, "", fail("missing predicateType in attestation")
	}

	var payload map[string]any
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, "", fail("failed to decode payload as a JSON object: " + err.Error())
	}
	return payload, statement.PredicateType, nil
}
