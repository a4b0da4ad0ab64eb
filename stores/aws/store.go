package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"time"

	"overlay-builder/core"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
)

// objectAPI is the subset of the S3 client the store uses.
type objectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type s3Store struct {
	s3Client objectAPI
	bucket   string
}

// NewStore creates a new S3-based store.
func NewStore(bucketName string) *s3Store {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	return &s3Store{
		s3Client: s3.NewFromConfig(cfg),
		bucket:   bucketName,
	}
}

// object is the stored form; Project hides UserID from JSON.
type object struct {
	core.Project
	UserID string `json:"userId"`
}

func (s *s3Store) projectKey(userID, projectID string) (string, error) {
	// Ids are single path segments.
	if path.Base(projectID) != projectID || path.Base(userID) != userID {
		return "", fmt.Errorf("invalid project id: must not be a path")
	}
	if projectID == "" || projectID == "." || projectID == ".." || userID == "" || userID == "." || userID == ".." {
		return "", fmt.Errorf("invalid project id: must not be empty or a dot directory")
	}
	return path.Join(userID, projectID), nil
}

func (s *s3Store) read(ctx context.Context, key string) (*core.Project, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("project %s not found: %w", key, core.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get project %s: %v", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read project data: %v", err)
	}

	var obj object
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project data: %v", err)
	}
	p := obj.Project
	p.UserID = obj.UserID
	return &p, nil
}

func (s *s3Store) List(ctx context.Context, userID string) ([]*core.Project, error) {
	log := logrus.WithField("user_id", userID)
	output, err := s.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(userID + "/"),
	})
	if err != nil {
		log.WithError(err).Error("Failed to list projects")
		return nil, fmt.Errorf("failed to list projects for user %s: %v", userID, err)
	}

	projects := make([]*core.Project, 0, len(output.Contents))
	for _, object := range output.Contents {
		p, err := s.read(ctx, aws.ToString(object.Key))
		if err != nil {
			log.WithError(err).WithField("key", aws.ToString(object.Key)).Warn("Failed to read project object, skipping")
			continue
		}
		p.Scene = nil
		projects = append(projects, p)
	}

	log.Infof("Listed %d projects", len(projects))
	return projects, nil
}

func (s *s3Store) Get(ctx context.Context, userID, id string) (*core.Project, error) {
	key, err := s.projectKey(userID, id)
	if err != nil {
		return nil, err
	}
	p, err := s.read(ctx, key)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"user_id": userID, "project_id": id}).Warn("Failed to get project")
		return nil, err
	}
	return p, nil
}

func (s *s3Store) Save(ctx context.Context, project *core.Project) error {
	key, err := s.projectKey(project.UserID, project.ID)
	if err != nil {
		return err
	}

	// Preserve CreatedAt on update
	if project.CreatedAt.IsZero() {
		if existing, err := s.read(ctx, key); err == nil {
			project.CreatedAt = existing.CreatedAt
		} else {
			project.CreatedAt = time.Now()
		}
	}
	project.UpdatedAt = time.Now()

	data, err := json.Marshal(object{Project: *project, UserID: project.UserID})
	if err != nil {
		return fmt.Errorf("failed to marshal project: %v", err)
	}

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		logrus.WithError(err).WithField("project_id", project.ID).Error("Failed to save project")
		return fmt.Errorf("failed to save project %s: %v", project.ID, err)
	}
	logrus.WithFields(logrus.Fields{"user_id": project.UserID, "project_id": project.ID}).Info("Project saved successfully")
	return nil
}

func (s *s3Store) Delete(ctx context.Context, userID, id string) error {
	key, err := s.projectKey(userID, id)
	if err != nil {
		return err
	}
	_, err = s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete project %s: %v", id, err)
	}
	logrus.WithFields(logrus.Fields{"user_id": userID, "project_id": id}).Info("Project deleted successfully")
	return nil
}
