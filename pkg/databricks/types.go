package databricks

import (
	"fmt"
)

// Cluster is the subset of a workspace cluster description the toolkit consumes.
type Cluster struct {
	ClusterID       string  `json:"cluster_id"`
	ClusterName     string  `json:"cluster_name"`
	SparkVersion    string  `json:"spark_version"`
	State           string  `json:"state,omitempty"`
	CreatorUserName *string `json:"creator_user_name,omitempty"`
}

// SparkVersion is one runtime offering returned by the spark-versions endpoint.
type SparkVersion struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// LibraryStatus is the installation status of one library on a cluster.
type LibraryStatus struct {
	Library  Library  `json:"library"`
	Status   string   `json:"status,omitempty"`
	Messages []string `json:"messages,omitempty"`
	// LibraryDetails carries resolved package metadata when the workspace reports it.
	LibraryDetails *LibraryDetails `json:"library_details,omitempty"`
}

// Library describes an installed library. Exactly one field is normally set.
type Library struct {
	PyPI  *PyPILibrary  `json:"pypi,omitempty"`
	Maven *MavenLibrary `json:"maven,omitempty"`
	Jar   string        `json:"jar,omitempty"`
	Whl   string        `json:"whl,omitempty"`
}

// PyPILibrary is a Python package installed from an index.
// Package may pin a version, e.g. "numpy==1.21.0".
type PyPILibrary struct {
	Package string `json:"package"`
	Repo    string `json:"repo,omitempty"`
}

// MavenLibrary is a JVM library installed from Maven coordinates.
type MavenLibrary struct {
	Coordinates string `json:"coordinates"`
}

// LibraryDetails holds resolved library metadata.
type LibraryDetails struct {
	PyPI *PyPIDetails `json:"pypi,omitempty"`
}

// PyPIDetails holds the resolved version of an installed PyPI package.
type PyPIDetails struct {
	Version string `json:"version,omitempty"`
}

type clusterListResponse struct {
	Clusters []Cluster `json:"clusters"`
}

type sparkVersionsResponse struct {
	Versions []SparkVersion `json:"versions"`
}

type libraryStatusResponse struct {
	ClusterID       string          `json:"cluster_id"`
	LibraryStatuses []LibraryStatus `json:"library_statuses"`
}

// APIError is returned when a workspace API call fails after the pipeline exhausted its retries.
type APIError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("databricks API %s failed with status %d: %v", e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("databricks API %s failed: %v", e.Operation, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}
