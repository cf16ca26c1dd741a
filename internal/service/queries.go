package service

// Warehouse statements use "?" placeholders; the warehouse client rebinds
// them for drivers that need positional "$n" markers.
const (
	timeseriesSQL = `
SELECT DATE, SUM(NEW_CONFIRMED) AS CASES
FROM V_JHU_GLOBAL
WHERE COUNTRY_REGION = ?
GROUP BY DATE
ORDER BY DATE`

	clustersSQL = `
SELECT COUNTRY_REGION,
	SUM(NEW_CONFIRMED) AS TOTAL_CASES,
	SUM(NEW_DEATHS) AS TOTAL_DEATHS,
	AVG(NEW_CONFIRMED) AS AVG_DAILY_CASES
FROM V_JHU_GLOBAL
GROUP BY COUNTRY_REGION
ORDER BY COUNTRY_REGION`

	patternSQL = `
SELECT * FROM V_PATTERN_SURGE WHERE COUNTRY_REGION = ?`
)
