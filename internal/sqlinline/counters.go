package sqlinline

// Read-path queries for daily metric counters. Write-path statements live in
// the counter repository because they run inside a transaction.

const QReportableCounters = `--sql b67fa2e4-7628-4dcd-9c32-e5f4cdfc64f7
select c.day, c.name, c.noisy_count, c.epsilon, c.batches,
       coalesce(t.hours_seen, 0), t.filter
from metric_daily_counters c
left join metric_daily_contributors t
  on t.day = c.day and t.name = c.name
where c.day = $1
  and not c.suppressed
order by c.name;
`
