// Package fixture connects to the database and loads the rows and secondary
// indexes the aql suites query against.
package fixture
