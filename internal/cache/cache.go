// Copyright 2026 The Identra Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"context"
	"time"
)

// Cache defines the interface for a TTL key-value cache.
// Get reports a miss as found=false with a nil error; errors are reserved for
// backend failures so callers can degrade to the source of truth.
type Cache interface {
	// Get retrieves a value by key
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Set stores a value with a TTL. A non-positive TTL must not store.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes a key. Removing a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
