package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/biogo/biogo/seq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyhackingspace/exon/dynprog"
	"github.com/happyhackingspace/exon/plif"
)

const problemYAML = `
states:
  - name: exon
    p: 0
    q: -.inf
  - name: stop
    p: -.inf
    q: 0
transitions:
  - from: exon
    to: stop
    value: 1
    penalty: [length, bonus]
plifs:
  - name: length
    limits: [0, 20]
    penalties: [0, 0]
    min_value: 0
    max_value: 20
  - name: bonus
    limits: [0, 20]
    penalties: [2, 2]
    min_value: 0
    max_value: 20
    transform: linear
positions: [0, 4, 10]
emissions:
  - [[0], [0], [0]]
  - [[0], [0], [0]]
genome:
  sequence: ATGAAATAAGCC
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadProblemBuildsDecodableModel(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "problem.yaml", problemYAML)

	s := NewStorage(dir)
	p, err := s.LoadProblem("problem.yaml")
	require.NoError(t, err)
	b, err := p.Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"exon", "stop"}, b.States.ToStr)
	assert.Equal(t, plif.NegInf, b.Model.Q[0])
	assert.Equal(t, plif.NegInf, b.Model.P[1])
	assert.IsType(t, &plif.Sum{}, b.Model.Penalties[0][1])
	assert.Nil(t, b.Model.Penalties[1][0])
	assert.Equal(t, 12, b.Input.GenomeLen)
	require.Len(t, b.Input.StopCodons, 12)
	assert.True(t, b.Input.StopCodons[6], "TAA at 6")
	assert.False(t, b.Input.StopCodons[0])

	d, err := dynprog.NewDecoder(b.Model, b.Input)
	require.NoError(t, err)
	res, err := d.Decode(t.Context(), dynprog.DefaultOptions())
	require.NoError(t, err)
	best := res.Paths[0]
	require.True(t, best.Reachable())
	assert.InDelta(t, 3.0, best.Score, 1e-12)
	assert.Equal(t, "exon", b.States.Name(best.States[0]))
	assert.Equal(t, "stop", b.States.Name(best.States[best.Len()-1]))
}

func TestLoadProblemJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "problem.json", `{
		"states": [{"name": "a", "p": 0, "q": 0}],
		"transitions": [],
		"positions": [0, 1],
		"emissions": [[[1], [2]]]
	}`)
	p, err := NewStorage(dir).LoadProblem("problem.json")
	require.NoError(t, err)
	b, err := p.Build()
	require.NoError(t, err)
	assert.Equal(t, 1, b.Model.Graph.NumStates())
	assert.Nil(t, b.Input.StopCodons)
}

func TestBuildGenomeFromFASTA(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "chr.fa", ">chr1 test\nAACCG\nTT\n")
	problem := strings.Replace(problemYAML, "  sequence: ATGAAATAAGCC", "  path: chr.fa\n  strand: \"-\"", 1)
	writeFile(t, dir, "problem.yaml", problem)

	p, err := NewStorage("").LoadProblem(filepath.Join(dir, "problem.yaml"))
	require.NoError(t, err)
	b, err := p.Build()
	require.NoError(t, err)
	assert.Equal(t, "AACGGTT", string(b.Genome))
	assert.Equal(t, 7, b.Input.GenomeLen)
}

func TestBuildErrors(t *testing.T) {
	cases := map[string]string{
		"unknown state": strings.Replace(problemYAML, "to: stop", "to: nowhere", 1),
		"unknown plif":  strings.Replace(problemYAML, "[length, bonus]", "[length, missing]", 1),
		"duplicate":     strings.Replace(problemYAML, "name: stop", "name: exon", 1),
		"bad plif":      strings.Replace(problemYAML, "penalties: [0, 0]", "penalties: [0]", 1),
		"bad strand":    strings.Replace(problemYAML, "sequence: ATGAAATAAGCC", "sequence: ACGT\n  strand: x", 1),
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "problem.yaml", text)
			p, err := NewStorage(dir).LoadProblem("problem.yaml")
			require.NoError(t, err)
			_, err = p.Build()
			assert.Error(t, err)
		})
	}
}

func TestOriented(t *testing.T) {
	assert.Equal(t, "AACGGTT", string(Oriented([]byte("AACCGTT"), seq.Minus)))
	assert.Equal(t, "AACCGTT", string(Oriented([]byte("AACCGTT"), seq.Plus)))
}

func TestLoadSequences(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "plain.txt", "ACGT\n\n# comment\nacgg\n")
	writeFile(t, dir, "seqs.fa", ">one\nACGT\n>two\nGG\nCC\n")
	s := NewStorage(dir)

	plain, err := s.LoadSequences("plain.txt")
	require.NoError(t, err)
	require.Len(t, plain, 2)
	assert.Equal(t, "seq1", plain[0].ID)
	assert.Equal(t, "acgg", string(plain[1].Sequence))

	fa, err := s.LoadSequences("seqs.fa")
	require.NoError(t, err)
	require.Len(t, fa, 2)
	assert.Equal(t, "one", fa[0].ID)
	assert.Equal(t, "GGCC", string(fa[1].Sequence))
}

func TestLoadBatchModel(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "wd.yaml", "degree: 2\nsupport_vectors: [acgt, ttga]\nalphas: [1, -0.5]\n")
	m, err := NewStorage(dir).LoadBatchModel("wd.yaml")
	require.NoError(t, err)
	assert.Equal(t, 4, m.Length())
	assert.Equal(t, "ACGT", m.SupportVectors[0])

	writeFile(t, dir, "bad.yaml", "degree: 0\n")
	_, err = NewStorage(dir).LoadBatchModel("bad.yaml")
	assert.Error(t, err)
}

func TestSaveAndLoadRun(t *testing.T) {
	s := NewStorage(t.TempDir())
	run := NewRun("decode", "problem.yaml", map[string]int{"paths": 3})
	require.NoError(t, s.SaveJSON("out/run.json", run))

	var got map[string]int
	loaded, err := s.LoadRun("out/run.json", &got)
	require.NoError(t, err)
	assert.Equal(t, run.ID, loaded.ID)
	assert.Equal(t, "decode", loaded.Command)
	assert.Equal(t, 3, got["paths"])
	assert.True(t, run.Created.Equal(loaded.Created))
}

func TestParseStrand(t *testing.T) {
	for in, want := range map[string]seq.Strand{"": seq.Plus, "+": seq.Plus, "-": seq.Minus, ".": seq.None} {
		got, err := ParseStrand(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseStrand("?")
	assert.Error(t, err)
}

func TestAlphabet(t *testing.T) {
	a := NewAlphabet()
	assert.Equal(t, 0, a.Add("exon"))
	assert.Equal(t, 1, a.Add("intron"))
	assert.Equal(t, 0, a.Add("exon"))
	assert.Equal(t, -1, a.Get("utr"))
	assert.Equal(t, []string{"intron", "", "exon"}, a.Names([]int{1, 5, 0}))
	assert.Equal(t, 2, a.Size())
}
