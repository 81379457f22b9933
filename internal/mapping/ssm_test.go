package mapping

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	calls   int
	errs    []error
	value   *string
	lastReq *ssm.GetParameterInput
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls++
	f.lastReq = in
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: f.value}}, nil
}

func newSSMSource(f *fakeSSM) *SSMSource {
	return &SSMSource{Client: f, Param: "/app/sitecontent-web/mappings", InitialInterval: time.Millisecond}
}

func TestSSMSource_Success(t *testing.T) {
	f := &fakeSSM{value: aws.String(sampleTable)}
	entries, err := newSSMSource(f).Mappings(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "/app/sitecontent-web/mappings", aws.ToString(f.lastReq.Name))
	assert.True(t, aws.ToBool(f.lastReq.WithDecryption))
}

func TestSSMSource_RetriesTransientErrors(t *testing.T) {
	f := &fakeSSM{
		errs:  []error{errors.New("throttled"), errors.New("throttled")},
		value: aws.String(sampleTable),
	}
	entries, err := newSSMSource(f).Mappings(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, 3, f.calls)
}

func TestSSMSource_GivesUpAfterMaxTries(t *testing.T) {
	f := &fakeSSM{errs: []error{errors.New("a"), errors.New("b"), errors.New("c"), errors.New("d")}}
	_, err := newSSMSource(f).Mappings(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, f.calls)
}

func TestSSMSource_PermanentFailures(t *testing.T) {
	tests := map[string]*fakeSSM{
		"not found": {errs: []error{&ssmtypes.ParameterNotFound{Message: aws.String("nope")}}},
		"empty":     {value: aws.String("  ")},
		"bad json":  {value: aws.String("[{")},
	}
	for name, f := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := newSSMSource(f).Mappings(context.Background())
			require.Error(t, err)
			assert.Equal(t, 1, f.calls, "permanent failures must not be retried")
		})
	}
}

func TestSSMSource_RequiresConfig(t *testing.T) {
	_, err := (&SSMSource{}).Mappings(context.Background())
	require.Error(t, err)
}
