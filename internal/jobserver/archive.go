package jobserver

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archive handles S3 uploads of completed transcript files.
type Archive struct {
	client  *s3.Client
	bucket  string
	baseURL string // public base URL, e.g. "https://dialogues.example.dev"
}

// NewArchive creates an S3 archive handler.
func NewArchive(client *s3.Client, bucket, baseURL string) *Archive {
	return &Archive{client: client, bucket: bucket, baseURL: baseURL}
}

// Upload puts a transcript JSON file into S3 and returns the key and a
// retrieval URL. Without a public base URL the s3:// form is returned.
func (a *Archive) Upload(ctx context.Context, dialogueID, path string) (key, url string, err error) {
	key = "transcripts/" + dialogueID + ".json"

	f, err := os.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", "", fmt.Errorf("stat transcript: %w", err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &a.bucket,
		Key:           &key,
		Body:          f,
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return "", "", fmt.Errorf("upload to s3: %w", err)
	}

	if a.baseURL != "" {
		return key, a.baseURL + "/" + key, nil
	}
	return key, "s3://" + a.bucket + "/" + key, nil
}
