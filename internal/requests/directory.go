// Copyright 2025 Tom Barlow
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

package requests

import "context"

// Subject is a participant (originator or assignee) resolved from the
// external subject directory.
type Subject struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
}

// SubjectDirectory resolves request participants by id. It is an
// external dependency (§6): fluxwork never stores user records itself.
type SubjectDirectory interface {
	Get(ctx context.Context, id string) (*Subject, error)
}

// NoDirectory is a SubjectDirectory that never resolves anyone, for
// deployments that drive requests entirely through opaque tokens with no
// email notification.
type NoDirectory struct{}

func (NoDirectory) Get(ctx context.Context, id string) (*Subject, error) {
	return nil, nil
}
