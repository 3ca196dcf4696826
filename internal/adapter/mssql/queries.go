package mssql

// queryListDatabases reports user databases; the first four database_ids are
// master, tempdb, model, and msdb.
const queryListDatabases = `
	SELECT
		d.name,
		COALESCE(SUSER_SNAME(d.owner_sid), '') AS owner,
		'' AS size_human
	FROM sys.databases d
	WHERE d.database_id > 4
	ORDER BY d.name`

// queryListTables has one %s placeholder for the schema filter clause.
// Comments come from the MS_Description extended property.
const queryListTables = `
	SELECT
		t.TABLE_SCHEMA,
		t.TABLE_NAME,
		CASE t.TABLE_TYPE
			WHEN 'BASE TABLE' THEN 'table'
			WHEN 'VIEW' THEN 'view'
			ELSE LOWER(t.TABLE_TYPE)
		END AS type,
		COALESCE(p.rows, 0) AS row_estimate,
		COALESCE(CAST(ep.value AS nvarchar(4000)), '') AS comment
	FROM INFORMATION_SCHEMA.TABLES t
	LEFT JOIN sys.schemas s ON s.name = t.TABLE_SCHEMA
	LEFT JOIN sys.objects o
		ON o.name = t.TABLE_NAME AND o.schema_id = s.schema_id AND o.type IN ('U', 'V')
	LEFT JOIN (
		SELECT object_id, SUM(rows) AS rows
		FROM sys.partitions
		WHERE index_id IN (0, 1)
		GROUP BY object_id
	) p ON p.object_id = o.object_id
	LEFT JOIN sys.extended_properties ep
		ON ep.major_id = o.object_id AND ep.minor_id = 0 AND ep.name = 'MS_Description'
	WHERE t.TABLE_TYPE IN ('BASE TABLE', 'VIEW')
		AND %s
	ORDER BY t.TABLE_SCHEMA, t.TABLE_NAME`

// queryTableComment doubles as the existence check: no row means no such
// table or view. @p1 = schema, @p2 = table.
const queryTableComment = `
	SELECT COALESCE(CAST(ep.value AS nvarchar(4000)), '')
	FROM sys.objects o
	JOIN sys.schemas s ON s.schema_id = o.schema_id
	LEFT JOIN sys.extended_properties ep
		ON ep.major_id = o.object_id AND ep.minor_id = 0 AND ep.name = 'MS_Description'
	WHERE s.name = @p1 AND o.name = @p2 AND o.type IN ('U', 'V')`

const queryColumns = `
	SELECT
		c.COLUMN_NAME,
		c.DATA_TYPE,
		c.IS_NULLABLE,
		COALESCE(c.COLUMN_DEFAULT, ''),
		COALESCE(CAST(ep.value AS nvarchar(4000)), '')
	FROM INFORMATION_SCHEMA.COLUMNS c
	LEFT JOIN sys.columns sc
		ON sc.object_id = OBJECT_ID(QUOTENAME(c.TABLE_SCHEMA) + '.' + QUOTENAME(c.TABLE_NAME))
		AND sc.name = c.COLUMN_NAME
	LEFT JOIN sys.extended_properties ep
		ON ep.major_id = sc.object_id AND ep.minor_id = sc.column_id AND ep.name = 'MS_Description'
	WHERE c.TABLE_SCHEMA = @p1 AND c.TABLE_NAME = @p2
	ORDER BY c.ORDINAL_POSITION`

const queryPrimaryKeys = `
	SELECT kcu.COLUMN_NAME
	FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
	JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
		ON kcu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME AND kcu.TABLE_SCHEMA = tc.TABLE_SCHEMA
	WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
		AND tc.TABLE_SCHEMA = @p1
		AND tc.TABLE_NAME = @p2`

const queryForeignKeys = `
	SELECT
		fk.name,
		pc.name,
		rt.name AS referenced_table,
		rc.name AS referenced_column
	FROM sys.foreign_keys fk
	JOIN sys.foreign_key_columns fkc ON fkc.constraint_object_id = fk.object_id
	JOIN sys.columns pc ON pc.object_id = fkc.parent_object_id AND pc.column_id = fkc.parent_column_id
	JOIN sys.tables rt ON rt.object_id = fkc.referenced_object_id
	JOIN sys.columns rc ON rc.object_id = fkc.referenced_object_id AND rc.column_id = fkc.referenced_column_id
	JOIN sys.tables pt ON pt.object_id = fk.parent_object_id
	JOIN sys.schemas s ON s.schema_id = pt.schema_id
	WHERE s.name = @p1 AND pt.name = @p2`

// queryIndexes composes a readable definition; there is no T-SQL equivalent
// of pg_get_indexdef. STRING_AGG needs SQL Server 2017 or newer.
const queryIndexes = `
	SELECT
		i.name,
		LOWER(i.type_desc) + ' (' + STRING_AGG(c.name, ', ') WITHIN GROUP (ORDER BY ic.key_ordinal) + ')',
		i.is_unique
	FROM sys.indexes i
	JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
	JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
	JOIN sys.tables t ON t.object_id = i.object_id
	JOIN sys.schemas s ON s.schema_id = t.schema_id
	WHERE s.name = @p1 AND t.name = @p2 AND i.name IS NOT NULL
	GROUP BY i.name, i.type_desc, i.is_unique`

const queryCheckConstraints = `
	SELECT cc.name, cc.definition
	FROM sys.check_constraints cc
	JOIN sys.tables t ON t.object_id = cc.parent_object_id
	JOIN sys.schemas s ON s.schema_id = t.schema_id
	WHERE s.name = @p1 AND t.name = @p2
	ORDER BY cc.name`

const queryTableSize = `
	SELECT
		COALESCE((
			SELECT SUM(p.rows) FROM sys.partitions p
			WHERE p.object_id = t.object_id AND p.index_id IN (0, 1)
		), 0),
		CAST(COALESCE((
			SELECT SUM(a.total_pages) * 8 FROM sys.partitions p
			JOIN sys.allocation_units a ON a.container_id = p.partition_id
			WHERE p.object_id = t.object_id
		), 0) AS varchar(32)) + ' KB'
	FROM sys.tables t
	JOIN sys.schemas s ON s.schema_id = t.schema_id
	WHERE s.name = @p1 AND t.name = @p2`
