package model

import (
	"fmt"
	"time"

	"github.com/hazyhaar/vigie/feature"
)

// Train builds a new model bundle from the baseline corpus plus any
// corrections, one head per artifact kind. The corpus is read, never
// modified. version must advance past the model the caller intends to
// replace; the store enforces this again at swap time.
func Train(version int64, corpus Corpus, urlCorrections, emailCorrections []Sample) (*Model, error) {
	urlSet := append(append([]Sample{}, corpus.URL...), urlCorrections...)
	emailSet := append(append([]Sample{}, corpus.Email...), emailCorrections...)

	urlHead, err := TrainNaiveBayes(feature.URLSchema(), urlSet)
	if err != nil {
		return nil, fmt.Errorf("model: url head: %w", err)
	}
	emailHead, err := TrainNaiveBayes(feature.EmailSchema(), emailSet)
	if err != nil {
		return nil, fmt.Errorf("model: email head: %w", err)
	}

	return &Model{
		Version:     version,
		TrainedAt:   time.Now().UTC(),
		SampleCount: len(urlSet) + len(emailSet),
		URL:         urlHead,
		Email:       emailHead,
	}, nil
}
