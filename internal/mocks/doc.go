// Package mocks contains mocks for the interfaces in the model package.
//
// Each mock has a MockXxx function field for each method; calling a
// method whose MockXxx field is nil panics, which is what we want in
// tests because it means we're exercising an unexpected code path.
package mocks
