package stores

import (
	"os"
	"strconv"

	"overlay-builder/core"
	"overlay-builder/stores/aws"
	"overlay-builder/stores/filesystem"
	"overlay-builder/stores/memory"
	"overlay-builder/stores/sqlite"

	"github.com/sirupsen/logrus"
)

// Store is the persistence contract every backend implements. Backends may
// also implement core.VersionStore and core.RoomRegistry.
type Store interface {
	core.ProjectStore
}

// MaxVersions reads MAX_VERSIONS, defaulting to 10.
func MaxVersions() int {
	if n, err := strconv.Atoi(os.Getenv("MAX_VERSIONS")); err == nil && n > 0 {
		return n
	}
	return 10
}

func GetStore() Store {
	storageType := os.Getenv("STORAGE_TYPE")
	maxVersions := MaxVersions()
	var store Store

	storageField := logrus.Fields{
		"storageType": storageType,
		"maxVersions": maxVersions,
	}

	switch storageType {
	case "filesystem":
		basePath := os.Getenv("LOCAL_STORAGE_PATH")
		if basePath == "" {
			basePath = "./data" // Default path
		}
		storageField["basePath"] = basePath
		store = filesystem.NewStore(basePath, maxVersions)
	case "sqlite":
		dataSourceName := os.Getenv("DATA_SOURCE_NAME")
		if dataSourceName == "" {
			dataSourceName = "overlays.db" // Default filename
		}
		storageField["dataSourceName"] = dataSourceName
		store = sqlite.NewStore(dataSourceName, maxVersions)
	case "s3":
		bucketName := os.Getenv("S3_BUCKET_NAME")
		if bucketName == "" {
			logrus.Fatal("S3_BUCKET_NAME environment variable must be set for s3 storage type")
		}
		storageField["bucketName"] = bucketName
		store = aws.NewStore(bucketName)
	default:
		store = memory.NewStore(maxVersions)
		storageField["storageType"] = "in-memory"
	}
	logrus.WithFields(storageField).Info("Use storage")
	return store
}
