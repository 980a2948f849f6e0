package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("select * from products"))
	assert.Equal(t, "INSERT", operationFromSQL(" INSERT INTO outbox_operations (id) VALUES (1)"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
	assert.Equal(t, "UNKNOWN", operationFromSQL("PRAGMA foreign_keys"))
}
