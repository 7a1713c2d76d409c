package storage

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq"
	"github.com/biogo/biogo/seq/linear"
)

// Record is one FASTA entry.
type Record struct {
	ID       string
	Sequence []byte
}

// ReadFASTA reads every record of a FASTA stream.
func ReadFASTA(r io.Reader) ([]Record, error) {
	reader := fasta.NewReader(r, linear.NewSeq("", nil, alphabet.DNAredundant))
	var records []Record
	for {
		s, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read fasta: %w", err)
		}
		ls, ok := s.(*linear.Seq)
		if !ok {
			return nil, fmt.Errorf("read fasta: unexpected sequence type %T", s)
		}
		records = append(records, Record{ID: ls.Name(), Sequence: letters(ls)})
	}
	return records, nil
}

// ReadGenome reads the first record of a FASTA file. On the minus strand
// the reverse complement is returned.
func ReadGenome(path string, strand seq.Strand) (*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	reader := fasta.NewReader(f, linear.NewSeq("", nil, alphabet.DNAredundant))
	s, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read genome %s: no records", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read genome %s: %w", path, err)
	}
	ls, ok := s.(*linear.Seq)
	if !ok {
		return nil, fmt.Errorf("read genome %s: unexpected sequence type %T", path, s)
	}
	if strand == seq.Minus {
		ls.RevComp()
	}
	return &Record{ID: ls.Name(), Sequence: letters(ls)}, nil
}

// Oriented returns sequence as read on strand, reverse complemented on the
// minus strand.
func Oriented(sequence []byte, strand seq.Strand) []byte {
	if strand != seq.Minus {
		return sequence
	}
	s := linear.NewSeq("", alphabet.BytesToLetters(sequence), alphabet.DNAredundant)
	s.RevComp()
	return letters(s)
}

func letters(s *linear.Seq) []byte {
	b := make([]byte, len(s.Seq))
	for i, l := range s.Seq {
		b[i] = byte(l)
	}
	return b
}

// ParseStrand maps "+", "-" and "" to a strand.
func ParseStrand(s string) (seq.Strand, error) {
	switch s {
	case "", "+":
		return seq.Plus, nil
	case "-":
		return seq.Minus, nil
	case ".":
		return seq.None, nil
	}
	return seq.None, fmt.Errorf("unknown strand %q", s)
}
