package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key for a student's session
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// TestCompromiseKey returns the hash holding per-student compromise status
// (FLAGGED or RESET) for a test.
func (r *CacheKeyStruct) TestCompromiseKey(testID string) string {
	return fmt.Sprintf("test:%s:compromise", testID)
}

// CompromiseAtField is the field of the compromise hash holding when the
// student's status was last set.
func (r *CacheKeyStruct) CompromiseAtField(studentID int) string {
	return fmt.Sprintf("%d:at", studentID)
}

// TestPayloadKey returns the cache key for a test's metadata payload
func (r *CacheKeyStruct) TestPayloadKey(testID string) string {
	return fmt.Sprintf("test:%s:payload", testID)
}

// TestMonitorChannel returns the Redis PubSub channel name for a test monitor
func (r *CacheKeyStruct) TestMonitorChannel(testID string) string {
	return fmt.Sprintf("test:%s:monitor", testID)
}

var CacheKey = NewCacheKeyStruct()
