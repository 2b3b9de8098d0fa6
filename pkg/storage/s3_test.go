package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"aaronromeo.com/mailtally/pkg/mock"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	s3manageriface.UploaderAPI

	inputs []*s3manager.UploadInput
	bodies []string
	err    error
}

func (f *fakeUploader) UploadWithContext(_ aws.Context, in *s3manager.UploadInput, _ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	f.inputs = append(f.inputs, in)
	body, _ := io.ReadAll(in.Body)
	f.bodies = append(f.bodies, string(body))
	if f.err != nil {
		return nil, f.err
	}
	return &s3manager.UploadOutput{
		Location: "https://" + aws.StringValue(in.Bucket) + ".s3.amazonaws.com/" + aws.StringValue(in.Key),
	}, nil
}

func TestNewS3Uploader(t *testing.T) {
	_, err := NewS3Uploader(WithLogger(mock.SetupLogger(t)))
	assert.EqualError(t, err, "requires bucket")

	_, err = NewS3Uploader(WithBucket("reports", ""))
	assert.EqualError(t, err, "requires slogger")

	u, err := NewS3Uploader(
		WithBucket("reports", ""),
		WithRegion("us-east-1"),
		WithEndpoint("http://localhost:9000"),
		WithLogger(mock.SetupLogger(t)),
	)
	require.NoError(t, err)
	assert.NotNil(t, u.uploader)
}

func TestUpload(t *testing.T) {
	fake := &fakeUploader{}
	u, err := NewS3Uploader(
		WithBucket("reports", "/mailtally/"),
		WithUploader(fake),
		WithLogger(mock.SetupLogger(t)),
	)
	require.NoError(t, err)

	location, err := u.Upload(context.Background(), "email_stats.csv", strings.NewReader("Email Address\n"))
	require.NoError(t, err)

	assert.Equal(t, "https://reports.s3.amazonaws.com/mailtally/email_stats.csv", location)
	require.Len(t, fake.inputs, 1)
	assert.Equal(t, "mailtally/email_stats.csv", aws.StringValue(fake.inputs[0].Key))
	assert.Equal(t, "text/csv", aws.StringValue(fake.inputs[0].ContentType))
	assert.Equal(t, "Email Address\n", fake.bodies[0])
}

func TestUploadFailure(t *testing.T) {
	fake := &fakeUploader{err: errors.New("AccessDenied")}
	u, err := NewS3Uploader(WithBucket("reports", ""), WithUploader(fake), WithLogger(mock.SetupLogger(t)))
	require.NoError(t, err)

	_, err = u.Upload(context.Background(), "email_stats.csv", strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://reports/email_stats.csv")
	assert.Equal(t, "email_stats.csv", u.Key("email_stats.csv"))
}
