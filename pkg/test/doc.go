/*
Package test provides testing utilities for the jetstream-bridge module.

This package includes:
  - Suite: Base test suite with context and testify integration

It has no database or other integration-test helpers.

Usage:

	import "github.com/attaradev/jetstream-bridge/pkg/test"

	type MyTestSuite struct {
		test.Suite
	}

	func (s *MyTestSuite) TestSomething() {
		s.NoError(doSomething(s.Ctx))
	}

	func TestMySuite(t *testing.T) {
		test.Run(t, new(MyTestSuite))
	}
*/
package test
