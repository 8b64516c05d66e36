/*
Package schema models kintone app fields and records.

A form's field definitions come from the form API as a properties object:

	{"properties": {
	  "title":  {"type": "SINGLE_LINE_TEXT", "code": "title", "maxLength": "64"},
	  "amount": {"type": "NUMBER", "code": "amount", "minValue": "0"},
	  "status": {"type": "DROP_DOWN", "code": "status",
	             "options": {"open": {"label": "open", "index": "0"}}}
	}}

FieldsFromJSON turns that into Fields keyed by code. Each Field carries its
type's Descriptor: the query operators it supports, the value shape
SetValue accepts and the schema attributes it reads.

# Values

SetValue validates a value against the type and its configured bounds and
options, returning a *ValidationError on bad input. Values decoded from
record JSON skip that check: server data is trusted.

# Conditions

ConditionQuery renders one comparison of the kintone query grammar:

	title like "report"
	amount >= 100
	status in ("open","closed")
	created > TODAY()

An operator the type does not support, or a value of the wrong shape, is a
*ContractError. It means the calling code is wrong, not the user's input.

# Records

A Record is a set of Fields keyed by code. RecordFromJSON and
RecordsFromJSON read the records API's {code: {type, value}} objects;
Record.MarshalJSON writes the same shape and Record.Payload the request
body of create and update calls.
*/
package schema
