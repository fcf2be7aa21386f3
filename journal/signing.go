package journal

import (
	"errors"
	"fmt"

	"xdao.co/oeuvre/keys"
	"xdao.co/oeuvre/model"
)

// ErrUnsigned is returned by VerifyRecord for a record without a signature.
var ErrUnsigned = errors.New("journal: record is not signed")

// SigningSink signs each record and forwards the signed copy to Next.
type SigningSink struct {
	Next   Sink
	Signer keys.Signer
}

func (s *SigningSink) Append(rec model.ChangeRecord) error {
	signed, err := Sign(rec, s.Signer)
	if err != nil {
		return err
	}
	return s.Next.Append(signed)
}

// Sign returns rec with SignerKey and Signature set over the canonical
// encoding of its unsigned form.
func Sign(rec model.ChangeRecord, signer keys.Signer) (model.ChangeRecord, error) {
	rec = rec.Unsigned()
	msg, err := Encode(rec)
	if err != nil {
		return model.ChangeRecord{}, err
	}
	sig, err := signer.Sign(msg)
	if err != nil {
		return model.ChangeRecord{}, fmt.Errorf("sign seq %d: %w", rec.Seq, err)
	}
	rec.SignerKey = signer.KeyID()
	rec.Signature = sig
	return rec, nil
}

// VerifyRecord checks rec's signature against its SignerKey.
func VerifyRecord(rec model.ChangeRecord) error {
	if rec.SignerKey == "" || rec.Signature == "" {
		return ErrUnsigned
	}
	msg, err := Encode(rec.Unsigned())
	if err != nil {
		return err
	}
	return keys.Verify(rec.SignerKey, msg, rec.Signature)
}

// VerifyAll checks every record. If trusted is non-empty each SignerKey must
// be one of them.
func VerifyAll(recs []model.ChangeRecord, trusted ...string) error {
	allowed := make(map[string]bool, len(trusted))
	for _, k := range trusted {
		allowed[k] = true
	}
	for _, rec := range recs {
		if err := VerifyRecord(rec); err != nil {
			return fmt.Errorf("seq %d: %w", rec.Seq, err)
		}
		if len(allowed) > 0 && !allowed[rec.SignerKey] {
			return fmt.Errorf("seq %d: signer %s is not trusted", rec.Seq, rec.SignerKey)
		}
	}
	return nil
}
