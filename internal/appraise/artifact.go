package appraise

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/resale-estimator/internal/model"
	"github.com/sells-group/resale-estimator/internal/schema"
)

// ScorerFromArtifact verifies a against ver and returns its scorer and scaler.
// When remoteURL is set, or the artifact carries no coefficients, scoring is
// delegated to the model server at remoteURL.
func ScorerFromArtifact(a *model.Artifact, ver schema.Version, remoteURL string, opts ...model.RemoteOption) (model.Scorer, schema.Scaler, error) {
	if err := a.Verify(ver); err != nil {
		return nil, nil, err
	}

	var scorer model.Scorer
	if remoteURL != "" || a.Remote() {
		if remoteURL == "" {
			return nil, nil, eris.New("appraise: artifact has no coefficients and no model server is configured")
		}
		scorer = model.NewRemoteScorer(remoteURL, ver.Width(), opts...)
	} else {
		ls, err := model.NewLinearScorer(a)
		if err != nil {
			return nil, nil, err
		}
		scorer = ls
	}

	std, err := a.StandardScaler()
	if err != nil {
		return nil, nil, err
	}
	if std == nil {
		return scorer, nil, nil
	}
	return scorer, std, nil
}
