package domain

import (
	"path/filepath"
	"strings"
)

// AccessionPlaceholder is replaced by the accession in profile URL templates.
const AccessionPlaceholder = "{accession}"

// OutputSuffix terminates every search output file name.
const OutputSuffix = ".out"

// OutputName is "{accession}-{sequence file name without ext}.out".
func OutputName(accession, sequencePath, ext string) string {
	stem := strings.TrimSuffix(filepath.Base(sequencePath), ext)
	return accession + "-" + stem + OutputSuffix
}

// SearchPairs builds the cross product of profiles and the sequence files ending in ext,
// profiles outermost. A profile or sequence file listed twice yields its pairs once.
func SearchPairs(profiles []Profile, sequences []SequenceFile, dir, ext string) []SearchPair {
	var files []SequenceFile
	seenFiles := map[string]struct{}{}
	for _, s := range sequences {
		if ext != "" && !strings.HasSuffix(s.Path, ext) {
			continue
		}
		if _, ok := seenFiles[s.Path]; ok {
			continue
		}
		seenFiles[s.Path] = struct{}{}
		files = append(files, s)
	}

	pairs := make([]SearchPair, 0, len(profiles)*len(files))
	seen := map[string]struct{}{}
	for _, p := range profiles {
		if _, ok := seen[p.Accession]; ok {
			continue
		}
		seen[p.Accession] = struct{}{}
		for _, s := range files {
			pairs = append(pairs, SearchPair{
				Accession:    p.Accession,
				ProfilePath:  p.Path,
				SequencePath: s.Path,
				OutputPath:   filepath.Join(dir, OutputName(p.Accession, s.Path, ext)),
			})
		}
	}
	return pairs
}
