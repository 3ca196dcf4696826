package domain

// TableAnnotation carries operator-written context for one table: a table
// description and per-column descriptions keyed by column name.
type TableAnnotation struct {
	Comment string
	Columns map[string]string
}

// SchemaAnnotations maps "schema.table" to its annotation. Loaded from the
// policy file and merged over catalog metadata; engine-side comments always
// take precedence, annotations only fill the blanks.
type SchemaAnnotations map[string]TableAnnotation
