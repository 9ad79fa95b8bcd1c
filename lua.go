package lockbox

const (
	luaAppendJournal = `
		-- Atomically append events with a sequence consistency check
		-- KEYS[1] = journal list key
		-- KEYS[2] = checkpoint sequence key
		-- ARGV[1] = expected sequence (global)
		-- ARGV[2..N] = event data (JSON)
		-- Returns: {1, newSequence} on success, or {0, currentSequence}

		local currentLen = redis.call('LLEN', KEYS[1])
		local expected = tonumber(ARGV[1])
		local offset = tonumber(redis.call('GET', KEYS[2]) or "0")
		local currentSeq = offset + currentLen

		if expected ~= currentSeq then
			return {0, currentSeq}
		end

		local chunkSize = 128
		local startIdx = 2

		while startIdx <= #ARGV do
			local endIdx = math.min(startIdx + chunkSize - 1, #ARGV)
			local chunk = {}
			for i = startIdx, endIdx do
				table.insert(chunk, ARGV[i])
			end
			redis.call('RPUSH', KEYS[1], unpack(chunk))
			startIdx = endIdx + 1
		end

		return {1, offset + redis.call('LLEN', KEYS[1])}
		`

	luaLoadJournal = `
		-- Atomically get the checkpoint and every event journaled after it
		-- KEYS[1] = checkpoint value key
		-- KEYS[2] = checkpoint sequence key
		-- KEYS[3] = journal list key
		-- Returns: {checkpoint_data, checkpoint_seq, event...}

		local cpData = redis.call('GET', KEYS[1])
		local cpSeq = tonumber(redis.call('GET', KEYS[2]) or "0")
		local events = redis.call('LRANGE', KEYS[3], 0, -1)

		local result = {cpData or "", cpSeq}
		for _, ev in ipairs(events) do
			table.insert(result, ev)
		end
		return result
		`

	luaWriteCheckpoint = `
		-- Atomically save a checkpoint only if its sequence advances, and
		-- trim the journal prefix it covers
		-- KEYS[1] = checkpoint value key
		-- KEYS[2] = checkpoint sequence key
		-- KEYS[3] = journal list key
		-- ARGV[1] = checkpoint data
		-- ARGV[2] = checkpoint sequence

		local newSeq = tonumber(ARGV[2])
		local storedSeqStr = redis.call('GET', KEYS[2])

		if storedSeqStr then
			local storedSeq = tonumber(storedSeqStr)
			if newSeq <= storedSeq then
				return 1
			end
		end

		local storedSeq = tonumber(storedSeqStr or "0")
		local dropCount = newSeq - storedSeq
		if dropCount > 0 then
			redis.call('LTRIM', KEYS[3], dropCount, -1)
		end
		redis.call('SET', KEYS[1], ARGV[1])
		redis.call('SET', KEYS[2], newSeq)
		return 1
		`
)
