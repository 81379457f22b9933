package mapping

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/cenkalti/backoff/v5"

	"github.com/keithlinneman/sitecontent-web/internal/xerrors"
)

// ParameterGetter is the subset of the SSM API SSMSource needs.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMSource reads the mapping table JSON from an SSM parameter on every call.
// Transient API failures are retried with exponential backoff; a missing
// parameter or an unparsable value fails immediately.
type SSMSource struct {
	Client ParameterGetter
	Param  string

	// MaxTries bounds attempts per call (default 3).
	MaxTries uint
	// InitialInterval is the first backoff delay (default 200ms).
	InitialInterval time.Duration
}

func (s *SSMSource) Mappings(ctx context.Context) ([]Entry, error) {
	if s.Client == nil || s.Param == "" {
		return nil, xerrors.New("ssm mapping source: client and param are required")
	}
	tries := s.MaxTries
	if tries == 0 {
		tries = 3
	}
	eb := backoff.NewExponentialBackOff()
	if s.InitialInterval > 0 {
		eb.InitialInterval = s.InitialInterval
	} else {
		eb.InitialInterval = 200 * time.Millisecond
	}

	op := func() ([]Entry, error) {
		out, err := s.Client.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(s.Param),
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			var nf *ssmtypes.ParameterNotFound
			if errors.As(err, &nf) {
				return nil, backoff.Permanent(xerrors.Wrapf(err, "ssm parameter %s", s.Param))
			}
			return nil, xerrors.Wrapf(err, "get ssm parameter %s", s.Param)
		}
		if out.Parameter == nil || strings.TrimSpace(aws.ToString(out.Parameter.Value)) == "" {
			return nil, backoff.Permanent(xerrors.Newf("ssm parameter %s is empty", s.Param))
		}
		entries, err := Parse([]byte(aws.ToString(out.Parameter.Value)))
		if err != nil {
			return nil, backoff.Permanent(xerrors.Wrapf(err, "ssm parameter %s", s.Param))
		}
		return entries, nil
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(tries),
	)
}
